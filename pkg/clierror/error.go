// Package clierror provides structured errors for CLI output with codes,
// exit codes, and remediation hints.
package clierror

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/protoerr"
)

// Exit codes for pairctl commands.
const (
	ExitSuccess  = 0 // Operation completed successfully
	ExitGeneral  = 1 // Unknown/unhandled error
	ExitDenied   = 2 // Proof, signature, or policy rejection
	ExitExpired  = 3 // Invite or ticket past its TTL
	ExitNotFound = 4 // Resource doesn't exist
)

// Error codes (strings) for programmatic error handling
const (
	CodeInviteNotFound  = "INVITE_NOT_FOUND"
	CodeInviteExpired   = "INVITE_EXPIRED"
	CodeInviteUsed      = "INVITE_ALREADY_USED"
	CodeProofInvalid    = "PROOF_INVALID"
	CodePairingDenied   = "PAIRING_DENIED"
	CodeNotPaired       = "NOT_PAIRED"
	CodeTicketExpired   = "TICKET_EXPIRED"
	CodeTicketInvalid   = "TICKET_INVALID"
	CodeReceiptInvalid  = "RECEIPT_INVALID"
	CodeIdentityMissing = "IDENTITY_MISSING"
	CodeIdentityExists  = "IDENTITY_EXISTS"
	CodeInternalError   = "INTERNAL_ERROR"
)

// CLIError represents a structured error for CLI output.
type CLIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
	ExitCode  int    `json:"-"` // Not serialized, used for os.Exit
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	return e.Message
}

// InviteNotFound creates an error when an invite doesn't exist.
func InviteNotFound(id string) *CLIError {
	return &CLIError{
		Code:      CodeInviteNotFound,
		Message:   fmt.Sprintf("invite '%s' not found", id),
		Hint:      "Check invite IDs with 'pairctl invite list'",
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// InviteExpired creates an error for an invite past its TTL.
func InviteExpired(id string) *CLIError {
	return &CLIError{
		Code:      CodeInviteExpired,
		Message:   fmt.Sprintf("invite '%s' has expired", id),
		Hint:      "Create a fresh invite with 'pairctl invite create'",
		Retryable: false,
		ExitCode:  ExitExpired,
	}
}

// NotPaired creates an error when no active pairing exists.
func NotPaired(operatorID string) *CLIError {
	return &CLIError{
		Code:      CodeNotPaired,
		Message:   fmt.Sprintf("no active pairing for operator '%s'", operatorID),
		Hint:      "Check pairings with 'pairctl pairing list'",
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// IdentityMissing creates an error when the local identity key file is absent.
func IdentityMissing(path string) *CLIError {
	return &CLIError{
		Code:      CodeIdentityMissing,
		Message:   fmt.Sprintf("no identity key file at '%s'", path),
		Hint:      "Run 'pairctl identity init' first",
		Retryable: false,
		ExitCode:  ExitNotFound,
	}
}

// IdentityExists creates an error when init would overwrite an identity.
func IdentityExists(path string) *CLIError {
	return &CLIError{
		Code:      CodeIdentityExists,
		Message:   fmt.Sprintf("identity key file already exists at '%s'", path),
		Hint:      "Remove the file manually if you intend to replace the device identity",
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// ReceiptInvalid creates an error for a receipt that failed verification.
func ReceiptInvalid(reason string) *CLIError {
	return &CLIError{
		Code:      CodeReceiptInvalid,
		Message:   fmt.Sprintf("receipt verification failed: %s", reason),
		Hint:      "The receipt may be tampered with or signed by a different device",
		Retryable: false,
		ExitCode:  ExitDenied,
	}
}

// InternalError creates an error for unexpected internal errors.
func InternalError(err error) *CLIError {
	msg := "an unexpected internal error occurred"
	if err != nil {
		msg = fmt.Sprintf("internal error: %s", err.Error())
	}
	return &CLIError{
		Code:      CodeInternalError,
		Message:   msg,
		Retryable: false,
		ExitCode:  ExitGeneral,
	}
}

// protoCodeMap translates protocol error codes to CLI codes and exit codes.
var protoCodeMap = map[string]struct {
	code string
	hint string
	exit int
}{
	protoerr.CodeInviteExpired:      {CodeInviteExpired, "Create a fresh invite with 'pairctl invite create'", ExitExpired},
	protoerr.CodeInviteAlreadyUsed:  {CodeInviteUsed, "Each invite pairs exactly one operator; create a new one", ExitDenied},
	protoerr.CodeInviteInvalidProof: {CodeProofInvalid, "The pairing secret or proof did not match this invite", ExitDenied},
	protoerr.CodePairingDenied:      {CodePairingDenied, "Local policy rejected the requested permissions", ExitDenied},
	protoerr.CodeNotPaired:          {CodeNotPaired, "Check pairings with 'pairctl pairing list'", ExitNotFound},
	protoerr.CodeTicketExpired:      {CodeTicketExpired, "Request a fresh ticket with 'pairctl ticket issue'", ExitExpired},
	protoerr.CodeTicketInvalidSig:   {CodeTicketInvalid, "The ticket is tampered with or signed by a different device", ExitDenied},
	protoerr.CodeTicketBinding:      {CodeTicketInvalid, "The ticket is bound to a different connection", ExitDenied},
	protoerr.CodeConsentDenied:      {CodePairingDenied, "The local user declined the session", ExitDenied},
	protoerr.CodeConsentTimeout:     {CodePairingDenied, "Nobody answered the consent prompt in time", ExitDenied},
}

// FromProtocol converts a protocol error into a CLIError, mapping stable
// protocol codes onto the CLI taxonomy. Non-protocol errors become
// internal errors.
func FromProtocol(err error) *CLIError {
	if err == nil {
		return nil
	}
	if m, ok := protoCodeMap[protoerr.Code(err)]; ok {
		return &CLIError{
			Code:      m.code,
			Message:   err.Error(),
			Hint:      m.hint,
			Retryable: false,
			ExitCode:  m.exit,
		}
	}
	return InternalError(err)
}

// FormatError returns the error formatted for the given output format.
// Supported formats: "json" for JSON output, anything else for human-readable text.
func FormatError(err *CLIError, outputFormat string) string {
	if outputFormat == "json" {
		data, jsonErr := json.MarshalIndent(err, "", "  ")
		if jsonErr != nil {
			return fmt.Sprintf(`{"code":"%s","message":"%s"}`, err.Code, err.Message)
		}
		return string(data)
	}

	output := fmt.Sprintf("Error [%s]: %s", err.Code, err.Message)
	if err.Hint != "" {
		output += fmt.Sprintf("\nHint: %s", err.Hint)
	}
	return output
}

// PrintError prints the error to stderr in the appropriate format.
func PrintError(err *CLIError, outputFormat string) {
	fmt.Fprintln(os.Stderr, FormatError(err, outputFormat))
}

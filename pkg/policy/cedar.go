package policy

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/cedar-policy/cedar-go"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

//go:embed policies.cedar
var policiesContent []byte

// CedarConfig contains options for the Cedar-backed policy.
type CedarConfig struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyBytes allows loading policies from a custom source (for
	// testing). If nil, the embedded policies.cedar is used.
	PolicyBytes []byte

	// TrustedOperators lists operator IDs that carry the trusted
	// attribute in policy evaluation.
	TrustedOperators []identity.ID

	// Prompt, when set, turns Cedar-cleared attended connections into
	// pending consent requests answered by the local user. When nil,
	// Cedar's verdict is final.
	Prompt PromptFunc
}

// CedarPolicy evaluates pairing approvals and session consent against
// Cedar policies. It implements both PairingApprover and
// SessionConsentPolicy.
type CedarPolicy struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
	trusted  map[identity.ID]bool
	prompt   PromptFunc
}

// NewCedarPolicy creates a Cedar-backed policy from the configuration.
func NewCedarPolicy(cfg CedarConfig) (*CedarPolicy, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policyData := cfg.PolicyBytes
	if policyData == nil {
		policyData = policiesContent
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	trusted := make(map[identity.ID]bool, len(cfg.TrustedOperators))
	for _, id := range cfg.TrustedOperators {
		trusted[id] = true
	}

	return &CedarPolicy{
		policies: ps,
		logger:   logger,
		trusted:  trusted,
		prompt:   cfg.Prompt,
	}, nil
}

// ApprovePairing authorizes the pairing itself, then narrows the
// requested permission mask to the flags Cedar grants individually.
func (p *CedarPolicy) ApprovePairing(_ context.Context, req PairingRequest) (PairingDecision, error) {
	allowed, reason := p.authorize("pair", req.OperatorID, req.DeviceID, cedar.RecordMap{})
	if !allowed {
		return PairingDecision{Approved: false, Reason: reason}, nil
	}

	var granted Permissions
	for _, flag := range req.Requested.Flags() {
		ok, _ := p.authorize("grant", req.OperatorID, req.DeviceID, cedar.RecordMap{
			"permission": cedar.String(flag.Name()),
		})
		if ok {
			granted |= flag
		}
	}
	if granted == 0 {
		return PairingDecision{Approved: false, Reason: "no requested permission is grantable"}, nil
	}
	return PairingDecision{Approved: true, Granted: granted}, nil
}

// RequestConsent clears the connection against policy. Attended
// connections that pass policy still go to the local prompt when one is
// configured.
func (p *CedarPolicy) RequestConsent(_ context.Context, req ConsentRequest) (ConsentDecision, error) {
	allowed, reason := p.authorize("connect", req.OperatorID, req.DeviceID, cedar.RecordMap{
		"unattended": cedar.Boolean(req.Unattended),
	})
	if !allowed {
		return ConsentDecision{State: ConsentDenied, Reason: reason}, nil
	}
	if !req.Unattended && p.prompt != nil {
		reply := make(chan ConsentAnswer, 1)
		go p.prompt(req, reply)
		return ConsentDecision{State: ConsentPending, Answer: reply}, nil
	}
	return ConsentDecision{State: ConsentApproved}, nil
}

// PolicyCount returns the number of loaded policies.
func (p *CedarPolicy) PolicyCount() int {
	count := 0
	for range p.policies.All() {
		count++
	}
	return count
}

// authorize evaluates one action against the policy set and logs the
// decision.
func (p *CedarPolicy) authorize(action string, operatorID, deviceID identity.ID, ctxMap cedar.RecordMap) (bool, string) {
	operatorUID := cedar.NewEntityUID("Operator", cedar.String(operatorID.String()))
	deviceUID := cedar.NewEntityUID("Device", cedar.String(deviceID.String()))

	entities := cedar.EntityMap{
		operatorUID: cedar.Entity{
			UID:     operatorUID,
			Parents: cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"trusted": cedar.Boolean(p.trusted[operatorID]),
			}),
		},
		deviceUID: cedar.Entity{
			UID:        deviceUID,
			Parents:    cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{}),
		},
	}

	cedarReq := cedar.Request{
		Principal: operatorUID,
		Action:    cedar.NewEntityUID("Action", cedar.String(action)),
		Resource:  deviceUID,
		Context:   cedar.NewRecord(ctxMap),
	}

	decision, diagnostic := cedar.Authorize(p.policies, entities, cedarReq)
	allowed := decision == cedar.Allow

	policyID := ""
	if len(diagnostic.Reasons) > 0 {
		policyID = string(diagnostic.Reasons[0].PolicyID)
	}

	p.logger.Info("policy decision",
		"action", action,
		"operator", operatorID.String(),
		"device", deviceID.String(),
		"decision", allowed,
		"policy_id", policyID,
	)
	for _, err := range diagnostic.Errors {
		p.logger.Error("policy evaluation error",
			"policy", err.PolicyID,
			"error", err.Message,
		)
	}

	if allowed {
		return true, ""
	}
	if policyID != "" {
		return false, fmt.Sprintf("denied by policy %s", policyID)
	}
	return false, "no matching permit policy"
}

package cmd

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/session"
)

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketIssueCmd)
	ticketCmd.AddCommand(ticketValidateCmd)
	ticketCmd.AddCommand(ticketListCmd)
	ticketCmd.AddCommand(ticketSweepCmd)
}

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Manage session tickets",
}

var ticketIssueCmd = &cobra.Command{
	Use:   "issue <operator-id>",
	Short: "Issue a session ticket for a paired operator",
	Long: `Issue a short-lived session ticket for a paired operator.

Running this command is the local approval, so no consent prompt fires.
The printed ticket carries the connection binding; hand it to the
operator's client for session start.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operatorID, err := identity.ParseID(args[0])
		if err != nil {
			return clierror.NotPaired(args[0])
		}

		a, keys, err := newSessionAuthorizer()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		ticket, err := a.Authorize(cmd.Context(), operatorID)
		if err != nil {
			return clierror.FromProtocol(err)
		}
		wire, err := ticket.Encode()
		if err != nil {
			return clierror.InternalError(err)
		}

		out := struct {
			ID          string `json:"id" yaml:"id"`
			OperatorID  string `json:"operator_id" yaml:"operator_id"`
			Permissions string `json:"permissions" yaml:"permissions"`
			ExpiresAt   string `json:"expires_at" yaml:"expires_at"`
			Ticket      string `json:"ticket" yaml:"ticket"`
		}{
			ID:          ticket.ID.String(),
			OperatorID:  ticket.OperatorID.String(),
			Permissions: ticket.Permissions.String(),
			ExpiresAt:   ticket.ExpiresAt.Format(time.RFC3339),
			Ticket:      base64.RawURLEncoding.EncodeToString(wire),
		}
		if done, err := formatOutput(out); done {
			return err
		}

		fmt.Printf("%s Issued ticket %s\n", color.GreenString("✓"), out.ID)
		fmt.Printf("Operator:     %s\n", out.OperatorID)
		fmt.Printf("Permissions:  %s\n", out.Permissions)
		fmt.Printf("Expires:      %s\n", out.ExpiresAt)
		fmt.Printf("Ticket:       %s\n", out.Ticket)
		return nil
	},
}

var ticketValidateCmd = &cobra.Command{
	Use:   "validate <ticket>",
	Short: "Validate an encoded session ticket",
	Long: `Validate a base64-encoded session ticket against the device key and
the current pairing state. Checks expiry, signature, binding, and that
the pairing has not been revoked since issue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wire, err := base64.RawURLEncoding.DecodeString(args[0])
		if err != nil {
			return clierror.InternalError(fmt.Errorf("decode ticket: %w", err))
		}
		ticket, err := session.DecodeTicket(wire)
		if err != nil {
			return clierror.InternalError(err)
		}

		a, keys, err := newSessionAuthorizer()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		if err := a.Validate(cmd.Context(), ticket, ticket.Binding); err != nil {
			return clierror.FromProtocol(err)
		}

		fmt.Printf("%s Ticket %s is valid\n", color.GreenString("✓"), ticket.ID)
		fmt.Printf("Operator:     %s\n", ticket.OperatorID)
		fmt.Printf("Permissions:  %s\n", ticket.Permissions)
		fmt.Printf("Expires:      %s\n", ticket.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var ticketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored session tickets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tickets, err := pairStore.ListTickets(cmd.Context())
		if err != nil {
			return clierror.InternalError(err)
		}

		type row struct {
			ID          string `json:"id" yaml:"id"`
			OperatorID  string `json:"operator_id" yaml:"operator_id"`
			Permissions string `json:"permissions" yaml:"permissions"`
			ExpiresAt   string `json:"expires_at" yaml:"expires_at"`
		}
		rows := make([]row, 0, len(tickets))
		for _, tk := range tickets {
			rows = append(rows, row{
				ID:          tk.ID.String(),
				OperatorID:  tk.OperatorID.String(),
				Permissions: tk.Permissions.String(),
				ExpiresAt:   tk.ExpiresAt.Format(time.RFC3339),
			})
		}
		if done, err := formatOutput(rows); done {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No tickets.")
			return nil
		}
		now := time.Now()
		for i, r := range rows {
			status := "valid"
			if tickets[i].Expired(now) {
				status = "expired"
			}
			fmt.Printf("%s  %-9s  operator %s  expires %s\n", r.ID, colorStatus(status), r.OperatorID, r.ExpiresAt)
		}
		return nil
	},
}

var ticketSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired session tickets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := pairStore.DeleteExpired(cmd.Context(), time.Now())
		if err != nil {
			return clierror.InternalError(err)
		}
		fmt.Printf("%s Deleted %d expired ticket(s)\n", color.GreenString("✓"), n)
		return nil
	},
}

// newSessionAuthorizer builds a session authorizer over the open store.
// CLI-driven issuance is itself the consent, so the policy auto-approves.
func newSessionAuthorizer() (*session.Authorizer, *identity.Keys, error) {
	keys, err := loadKeys()
	if err != nil {
		return nil, nil, err
	}
	consent := policy.AutoConsent{Approve: true, Reason: "local operator action"}
	return session.NewAuthorizer(keys, pairStore, pairStore, consent), keys, nil
}

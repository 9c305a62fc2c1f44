package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/policy"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/transcript"
)

var inviteTTL time.Duration

func init() {
	rootCmd.AddCommand(inviteCmd)
	inviteCmd.AddCommand(inviteCreateCmd)
	inviteCmd.AddCommand(inviteListCmd)
	inviteCmd.AddCommand(inviteRevokeCmd)

	inviteCreateCmd.Flags().DurationVar(&inviteTTL, "ttl", 0, "Invite validity window (default 1h)")
}

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Manage operator invites",
}

var inviteCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a single-use pairing invite",
	Long: `Create a single-use invite for pairing a new operator.

The invite secret is printed once and never stored; deliver it to the
operator over a channel you trust. The confirmation code lets both sides
check they hold the same invite before the secret is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, keys, err := newPairingManager()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		inv, secret, err := m.CreateInvite(cmd.Context())
		if err != nil {
			return clierror.FromProtocol(err)
		}

		sas, err := transcript.ShortAuthString(transcript.Sum(
			transcript.Field{Tag: 1, Data: inv.ID[:]},
			transcript.Field{Tag: 2, Data: secret},
		), 6)
		if err != nil {
			return clierror.InternalError(err)
		}

		out := struct {
			ID           string `json:"id" yaml:"id"`
			Secret       string `json:"secret" yaml:"secret"`
			Confirmation string `json:"confirmation" yaml:"confirmation"`
			ExpiresAt    string `json:"expires_at" yaml:"expires_at"`
		}{
			ID:           inv.ID.String(),
			Secret:       pairing.EncodeSecret(secret),
			Confirmation: sas,
			ExpiresAt:    inv.ExpiresAt.Format(time.RFC3339),
		}
		if done, err := formatOutput(out); done {
			return err
		}

		fmt.Printf("%s Created invite\n", color.GreenString("✓"))
		fmt.Printf("Invite ID:     %s\n", out.ID)
		fmt.Printf("Secret:        %s\n", color.CyanString(out.Secret))
		fmt.Printf("Confirmation:  %s\n", out.Confirmation)
		fmt.Printf("Expires:       %s\n", out.ExpiresAt)
		return nil
	},
}

var inviteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invites and their states",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		invites, err := pairStore.ListInvites(cmd.Context())
		if err != nil {
			return clierror.InternalError(err)
		}

		type row struct {
			ID        string `json:"id" yaml:"id"`
			Status    string `json:"status" yaml:"status"`
			CreatedAt string `json:"created_at" yaml:"created_at"`
			ExpiresAt string `json:"expires_at" yaml:"expires_at"`
		}
		now := time.Now()
		rows := make([]row, 0, len(invites))
		for _, inv := range invites {
			status := string(inv.Status)
			if inv.Status == pairing.InvitePending && inv.Expired(now) {
				status = "expired"
			}
			rows = append(rows, row{
				ID:        inv.ID.String(),
				Status:    status,
				CreatedAt: inv.CreatedAt.Format(time.RFC3339),
				ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
			})
		}
		if done, err := formatOutput(rows); done {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No invites.")
			return nil
		}
		for _, r := range rows {
			fmt.Printf("%s  %-9s  expires %s\n", r.ID, colorStatus(r.Status), r.ExpiresAt)
		}
		return nil
	},
}

var inviteRevokeCmd = &cobra.Command{
	Use:   "revoke <invite-id>",
	Short: "Revoke a pending invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.ParseID(args[0])
		if err != nil {
			return clierror.InviteNotFound(args[0])
		}
		if err := pairStore.RevokeInvite(cmd.Context(), id); err != nil {
			if errors.Is(err, pairing.ErrInviteNotFound) {
				return clierror.InviteNotFound(args[0])
			}
			return clierror.InternalError(err)
		}
		fmt.Printf("%s Revoked invite %s\n", color.GreenString("✓"), id)
		return nil
	},
}

func colorStatus(status string) string {
	switch status {
	case "pending":
		return color.YellowString("%-9s", status)
	case "consumed", "paired", "valid":
		return color.GreenString("%-9s", status)
	case "revoked", "expired":
		return color.RedString("%-9s", status)
	default:
		return fmt.Sprintf("%-9s", status)
	}
}

// newPairingManager builds a pairing manager over the open store with the
// local identity and the configured approval policy.
func newPairingManager() (*pairing.Manager, *identity.Keys, error) {
	keys, err := loadKeys()
	if err != nil {
		return nil, nil, err
	}

	approver, err := newApprover()
	if err != nil {
		keys.Destroy()
		return nil, nil, err
	}

	opts := []pairing.Option{}
	if inviteTTL > 0 {
		opts = append(opts, pairing.WithInviteTTL(inviteTTL))
	} else if cfg.InviteTTLMinutes > 0 {
		opts = append(opts, pairing.WithInviteTTL(time.Duration(cfg.InviteTTLMinutes)*time.Minute))
	}
	return pairing.NewManager(keys, pairStore, pairStore, approver, opts...), keys, nil
}

// newApprover builds the Cedar policy engine with the configured trusted
// operators.
func newApprover() (*policy.CedarPolicy, error) {
	trusted := make([]identity.ID, 0, len(cfg.TrustedOperators))
	for _, s := range cfg.TrustedOperators {
		id, err := identity.ParseID(s)
		if err != nil {
			return nil, clierror.InternalError(fmt.Errorf("config trusted_operators entry %q: %w", s, err))
		}
		trusted = append(trusted, id)
	}
	p, err := policy.NewCedarPolicy(policy.CedarConfig{TrustedOperators: trusted})
	if err != nil {
		return nil, clierror.InternalError(err)
	}
	return p, nil
}

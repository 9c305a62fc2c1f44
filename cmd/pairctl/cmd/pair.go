package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

func init() {
	rootCmd.AddCommand(pairCmd)
	pairCmd.AddCommand(pairListCmd)
	pairCmd.AddCommand(pairRevokeCmd)
}

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Manage operator pairings",
}

var pairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pairing records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := pairStore.ListRecords(cmd.Context())
		if err != nil {
			return clierror.InternalError(err)
		}

		type row struct {
			OperatorID  string `json:"operator_id" yaml:"operator_id"`
			Status      string `json:"status" yaml:"status"`
			Permissions string `json:"permissions" yaml:"permissions"`
			Unattended  bool   `json:"unattended" yaml:"unattended"`
			CreatedAt   string `json:"created_at" yaml:"created_at"`
		}
		rows := make([]row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, row{
				OperatorID:  rec.OperatorID.String(),
				Status:      string(rec.Status),
				Permissions: rec.Permissions.String(),
				Unattended:  rec.UnattendedEnabled,
				CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
			})
		}
		if done, err := formatOutput(rows); done {
			return err
		}

		if len(rows) == 0 {
			fmt.Println("No pairings.")
			return nil
		}
		for _, r := range rows {
			unattended := ""
			if r.Unattended {
				unattended = "  unattended"
			}
			fmt.Printf("%s  %-9s  %s%s\n", r.OperatorID, colorStatus(r.Status), r.Permissions, unattended)
		}
		return nil
	},
}

var pairRevokeCmd = &cobra.Command{
	Use:   "revoke <operator-id>",
	Short: "Revoke an operator pairing",
	Long: `Revoke the pairing with an operator. Existing tickets held by the
operator stop validating immediately; a new pairing requires a fresh
invite.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		operatorID, err := identity.ParseID(args[0])
		if err != nil {
			return clierror.NotPaired(args[0])
		}

		m, keys, err := newPairingManager()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		if err := m.Revoke(cmd.Context(), operatorID); err != nil {
			return clierror.FromProtocol(err)
		}
		fmt.Printf("%s Revoked pairing with operator %s\n", color.GreenString("✓"), operatorID)
		return nil
	},
}

package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/pairing"
)

func init() {
	rootCmd.AddCommand(receiptCmd)
	receiptCmd.AddCommand(receiptVerifyCmd)
}

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Work with pairing receipts",
}

var receiptVerifyCmd = &cobra.Command{
	Use:   "verify <jws>",
	Short: "Verify a pairing receipt against the local device key",
	Long: `Verify a compact JWS pairing receipt. The receipt must be signed by
this device's identity key; a receipt from any other device fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := loadKeys()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		device, pubErr := keys.Public()
		if pubErr != nil {
			return clierror.InternalError(pubErr)
		}

		receipt, err := pairing.VerifyJWS(args[0], device)
		if err != nil {
			return clierror.ReceiptInvalid(err.Error())
		}

		out := struct {
			DeviceID    string `json:"device_id" yaml:"device_id"`
			OperatorID  string `json:"operator_id" yaml:"operator_id"`
			Permissions string `json:"permissions" yaml:"permissions"`
			IssuedAt    string `json:"issued_at" yaml:"issued_at"`
		}{
			DeviceID:    receipt.DeviceID.String(),
			OperatorID:  receipt.Operator.ID.String(),
			Permissions: receipt.Permissions.String(),
			IssuedAt:    receipt.IssuedAt.Format(time.RFC3339),
		}
		if done, err := formatOutput(out); done {
			return err
		}

		fmt.Printf("%s Receipt is valid\n", color.GreenString("✓"))
		fmt.Printf("Device:       %s\n", out.DeviceID)
		fmt.Printf("Operator:     %s\n", out.OperatorID)
		fmt.Printf("Permissions:  %s\n", out.Permissions)
		fmt.Printf("Issued:       %s\n", out.IssuedAt)
		return nil
	},
}

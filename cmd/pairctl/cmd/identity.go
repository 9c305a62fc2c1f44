package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/pkg/clierror"
	"github.com/GoZippy/ZippyViewer-sub003/pkg/identity"
)

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityInitCmd)
	identityCmd.AddCommand(identityShowCmd)
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the local device identity",
}

var identityInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new device identity",
	Long: `Generate a fresh device identity and store its key material in the
identity key file with owner-only permissions.

The identity is permanent: pairings and receipts are bound to it. Refuses
to overwrite an existing key file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyFile.Exists() {
			return clierror.IdentityExists(keyFile.Path())
		}

		keys, err := identity.Generate()
		if err != nil {
			return clierror.InternalError(err)
		}
		defer keys.Destroy()

		if err := keyFile.Save(keys); err != nil {
			return clierror.InternalError(err)
		}

		pub, err := keys.Public()
		if err != nil {
			return clierror.InternalError(err)
		}
		fmt.Printf("%s Generated device identity\n", color.GreenString("✓"))
		return printIdentity(pub, keyFile.Path())
	},
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the local device identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := loadKeys()
		if err != nil {
			return err
		}
		defer keys.Destroy()

		pub, pubErr := keys.Public()
		if pubErr != nil {
			return clierror.InternalError(pubErr)
		}
		return printIdentity(pub, keyFile.Path())
	},
}

// identityOutput is the structured form for json/yaml output.
type identityOutput struct {
	ID                 string `json:"id" yaml:"id"`
	SigningFingerprint string `json:"signing_fingerprint" yaml:"signing_fingerprint"`
	KexFingerprint     string `json:"kex_fingerprint" yaml:"kex_fingerprint"`
	KeyFile            string `json:"key_file" yaml:"key_file"`
}

func printIdentity(pub identity.Identity, path string) error {
	out := identityOutput{
		ID:                 pub.ID.String(),
		SigningFingerprint: identity.Fingerprint(pub.SigningPub),
		KexFingerprint:     identity.Fingerprint(pub.KexPub),
		KeyFile:            path,
	}
	if done, err := formatOutput(out); done {
		return err
	}

	fmt.Printf("Device ID:            %s\n", out.ID)
	fmt.Printf("Signing fingerprint:  %s\n", out.SigningFingerprint)
	fmt.Printf("Kex fingerprint:      %s\n", out.KexFingerprint)
	fmt.Printf("Key file:             %s\n", out.KeyFile)
	return nil
}

// loadKeys loads the identity key handle, translating a missing key file
// into the CLI error taxonomy.
func loadKeys() (*identity.Keys, error) {
	keys, err := keyFile.Load()
	if err != nil {
		if !keyFile.Exists() {
			return nil, clierror.IdentityMissing(keyFile.Path())
		}
		return nil, clierror.InternalError(err)
	}
	return keys, nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/trust"
)

func newKeygenCmd() *cobra.Command {
	var privateKeyPath string
	var publicKeyPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair",
		Long: `Keygen creates an Ed25519 key pair for signing release artifacts.

The private key signs artifacts on the release side ('upcast sign');
the public key goes next to the installed application and is named in
its identity file.

Examples:
  upcast keygen
  upcast keygen --private release.key --public my-app.pub`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(cmd, privateKeyPath, publicKeyPath)
		},
	}

	cmd.Flags().StringVar(&privateKeyPath, "private", "upcast-signing.key", "Where to write the private key")
	cmd.Flags().StringVar(&publicKeyPath, "public", "upcast-signing.pub", "Where to write the public key")

	return cmd
}

func runKeygen(cmd *cobra.Command, privateKeyPath, publicKeyPath string) error {
	if err := trust.GenerateKeyPair(privateKeyPath, publicKeyPath); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Private key: %s\n", privateKeyPath)
	_, _ = fmt.Fprintf(out, "Public key:  %s\n", publicKeyPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Keep the private key on the release machine only")
	_, _ = fmt.Fprintln(out, "  2. Ship the public key with the application")
	_, _ = fmt.Fprintln(out, "  3. Point the identity's public_key at it")
	return nil
}

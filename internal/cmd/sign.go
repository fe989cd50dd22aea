package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/trust"
)

func newSignCmd() *cobra.Command {
	var keyPath string
	var feedVersion string
	var artifactURL string

	cmd := &cobra.Command{
		Use:   "sign <artifact>",
		Short: "Sign a release artifact",
		Long: `Sign computes the artifact's signature with a private key from
'upcast keygen'. The signature goes into the release feed next to the
artifact URL.

With --version and --url, sign emits a complete feed document instead
of the bare signature.

Examples:
  upcast sign dist/my-app.bin --key release.key
  upcast sign dist/my-app.bin --key release.key \
      --version 2.1.0 --url https://releases.example.com/my-app-2.1.0.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(cmd, args[0], keyPath, feedVersion, artifactURL)
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "", "Private key to sign with (required)")
	cmd.Flags().StringVar(&feedVersion, "version", "", "Release version for the emitted feed document")
	cmd.Flags().StringVar(&artifactURL, "url", "", "Artifact URL for the emitted feed document")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runSign(cmd *cobra.Command, artifactPath, keyPath, feedVersion, artifactURL string) error {
	signature, err := trust.Sign(artifactPath, keyPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Bare signature unless a full feed document was asked for.
	if feedVersion == "" && artifactURL == "" {
		_, _ = fmt.Fprintln(out, signature)
		return nil
	}
	if feedVersion == "" || artifactURL == "" {
		return fmt.Errorf("--version and --url must be given together")
	}

	doc := map[string]string{
		"version":     feedVersion,
		"artifactUrl": artifactURL,
		"signature":   signature,
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

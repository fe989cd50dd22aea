package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/apply"
)

func newInstallCmd() *cobra.Command {
	var target string
	var restart string
	var fromArchive bool

	cmd := &cobra.Command{
		Use:   "install <artifact|archive-id>",
		Short: "Swap a downloaded artifact into place",
		Long: `Install replaces the application binary with a downloaded artifact.
The previous binary is restored if the swap fails partway.

The artifact is either a path produced by 'upcast check', or an archive
entry when --from-archive is set ('latest' picks the newest).

Examples:
  upcast install /tmp/abc12345-my-app.bin --target /usr/local/bin/my-app
  upcast install --from-archive latest --target /usr/local/bin/my-app
  upcast install a.bin --target /usr/local/bin/my-app --restart "systemctl restart my-app"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, args[0], target, restart, fromArchive)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "Path of the installed binary to replace (required)")
	cmd.Flags().StringVar(&restart, "restart", "", "Command to run after a successful swap")
	cmd.Flags().BoolVar(&fromArchive, "from-archive", false, "Treat the argument as an archive entry ID")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func runInstall(cmd *cobra.Command, artifact, target, restart string, fromArchive bool) error {
	if fromArchive {
		manager, err := archiveManager()
		if err != nil {
			return err
		}
		entry, err := manager.Get(artifact)
		if err != nil {
			return err
		}
		artifact = manager.ArtifactPath(entry)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installing archived version %s\n", entry.Version)
	}

	opts := apply.Options{TargetPath: target}
	if restart != "" {
		opts.RestartCommand = strings.Fields(restart)
	}

	if err := apply.NewInstaller().Install(artifact, opts); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", target)
	return nil
}

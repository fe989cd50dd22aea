package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/apply"
	"github.com/upcast-io/upcast/internal/feed"
	"github.com/upcast-io/upcast/internal/identity"
	"github.com/upcast-io/upcast/internal/interactive"
	"github.com/upcast-io/upcast/internal/semver"
)

// The agent updates itself the same way it updates everything else:
// through a release feed.
const defaultSelfFeed = "https://releases.upcast.io/upcast/feed.json"

func newVersionCmd() *cobra.Command {
	var checkOnly bool
	var doUpdate bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information and check for updates",
		Long: `Display the current upcast version and optionally check for or install
a newer one.

Examples:
  upcast version              # Show current version
  upcast version --check      # Check if an update is available
  upcast version --update     # Download, verify and install the latest version`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, checkOnly, doUpdate)
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Check for updates without installing")
	cmd.Flags().BoolVar(&doUpdate, "update", false, "Update to the latest version")

	return cmd
}

func runVersion(cmd *cobra.Command, checkOnly, doUpdate bool) error {
	out := cmd.OutOrStdout()

	// If no flags, just show version
	if !checkOnly && !doUpdate {
		_, _ = fmt.Fprintf(out, "upcast version %s\n", upcastVersion)
		return nil
	}

	current := semver.Normalize(upcastVersion)
	if current == "dev" {
		return fmt.Errorf("this is a development build, self-update is disabled")
	}

	feedURL := os.Getenv("UPCAST_SELF_FEED")
	if feedURL == "" {
		feedURL = defaultSelfFeed
	}

	selfID := &identity.Identity{
		Name:          "upcast",
		Version:       current,
		FeedURL:       feedURL,
		PublicKeyPath: os.Getenv("UPCAST_SELF_PUBKEY"),
	}

	confirmer := agent.Confirmer(agent.AcceptAll)
	if checkOnly {
		confirmer = agent.ConfirmerFunc(func(context.Context, *feed.Feed) (agent.Response, error) {
			return agent.Decline, nil
		})
	}

	ag, err := agent.New(agent.Config{
		Identity:  selfID,
		Notifier:  interactive.NewConsoleNotifier(out),
		Confirmer: confirmer,
		Logger:    rootLog,
	})
	if err != nil {
		return err
	}

	res, err := ag.Check(cmd.Context(), agent.CheckOptions{Force: false, ShowDiagnostics: true})
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	if res.Outcome == feed.NoUpdate {
		return nil
	}

	if checkOnly {
		_, _ = fmt.Fprintln(out, "\nRun 'upcast version --update' to install")
		return nil
	}

	// Swap the running binary for the verified artifact.
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate the running binary: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("failed to resolve binary path: %w", err)
	}

	if err := apply.NewInstaller().Install(res.ArtifactPath, apply.Options{TargetPath: exe}); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\nSuccessfully updated to v%s\n", res.Feed.Version)
	return nil
}

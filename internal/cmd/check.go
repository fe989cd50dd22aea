package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/feed"
	"github.com/upcast-io/upcast/internal/interactive"
	"github.com/upcast-io/upcast/internal/output"
)

func newCheckCmd() *cobra.Command {
	var force bool
	var feedURL string
	var yes bool
	var downloadDir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one update check",
		Long: `Check fetches the release feed once, decides whether an update is on
offer and, if you confirm, downloads the artifact and verifies its
signature.

A forced check re-offers the installed version and ignores a skipped
release.

Examples:
  upcast check                  # Routine check
  upcast check --force          # User-initiated check
  upcast check --feed URL       # Check a different feed
  upcast check --yes            # Accept the offer without prompting`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, force, feedURL, yes, downloadDir)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "User-initiated check: re-offer the installed version, ignore skips")
	cmd.Flags().StringVar(&feedURL, "feed", "", "Override the identity's feed URL for this check")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Accept an offered update without prompting")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Directory for downloaded artifacts")

	return cmd
}

func runCheck(cmd *cobra.Command, force bool, feedURL string, yes bool, downloadDir string) error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}

	var confirmer agent.Confirmer
	switch {
	case yes:
		confirmer = agent.AcceptAll
	case interactive.IsTerminal():
		confirmer = interactive.NewPrompter()
	default:
		// No terminal and no --yes: report the offer, install nothing.
		confirmer = agent.ConfirmerFunc(func(context.Context, *feed.Feed) (agent.Response, error) {
			return agent.Decline, nil
		})
	}

	var notifier agent.Notifier = interactive.NewConsoleNotifier(cmd.OutOrStdout())
	if quiet {
		notifier = agent.NopNotifier{}
	}

	ag, err := buildAgent(id, agent.Config{
		Notifier:    notifier,
		Confirmer:   confirmer,
		DownloadDir: downloadDir,
	})
	if err != nil {
		return err
	}

	res, err := ag.Check(cmd.Context(), agent.CheckOptions{
		Force:   force,
		FeedURL: feedURL,
		// A typed check always reports its outcome, like a forced one.
		ShowDiagnostics: !quiet,
	})
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format != output.FormatText {
		return output.NewWriter(cmd.OutOrStdout(), format).Write(res)
	}

	return nil
}

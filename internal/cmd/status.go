package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent's bookkeeping for this application",
		Long: `Status shows the identity the agent acts for, the outcome of the last
check and any skipped release.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}

	ag, err := buildAgent(id, agent.Config{})
	if err != nil {
		return err
	}
	s := ag.Status()

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format != output.FormatText {
		return output.NewWriter(os.Stdout, format).Write(s)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Application:\t%s\n", s.App)
	_, _ = fmt.Fprintf(w, "Installed version:\t%s\n", s.Version)
	_, _ = fmt.Fprintf(w, "Feed:\t%s\n", s.FeedURL)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", s.State)
	if s.LastCheck.IsZero() {
		_, _ = fmt.Fprintf(w, "Last check:\tnever\n")
	} else {
		_, _ = fmt.Fprintf(w, "Last check:\t%s\n", s.LastCheck.Format("2006-01-02 15:04:05"))
		_, _ = fmt.Fprintf(w, "Last outcome:\t%s\n", s.LastOutcome)
	}
	if s.LastOffered != "" {
		_, _ = fmt.Fprintf(w, "Last offered:\t%s\n", s.LastOffered)
	}
	if s.SkippedVersion != "" {
		_, _ = fmt.Fprintf(w, "Skipped release:\t%s\n", s.SkippedVersion)
	}
	return w.Flush()
}

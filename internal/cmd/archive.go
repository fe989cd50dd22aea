package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/archive"
	"github.com/upcast-io/upcast/internal/output"
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage verified artifacts kept for rollback",
		Long: `Archive manages the verified artifacts the agent keeps after each
successful update check.

Archived artifacts live under ~/.cache/upcast/artifacts/<app>/ together
with their metadata: version, source URL, checksum and trust verdict.
Use 'upcast install --from-archive' to roll back to one of them.`,
	}

	cmd.AddCommand(newArchiveListCmd())
	cmd.AddCommand(newArchiveShowCmd())
	cmd.AddCommand(newArchiveDeleteCmd())
	cmd.AddCommand(newArchivePruneCmd())

	return cmd
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived artifacts",
		Long:  `List displays all archived artifacts, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveList()
		},
	}
}

func newArchiveShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one archive entry",
		Long: `Show prints the full metadata of one archive entry.

Use 'latest' as the ID for the most recent entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveShow(args[0])
		},
	}
}

func newArchiveDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archive entry",
		Long:  `Delete removes an archive entry and its artifact.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchiveDelete(args[0])
		},
	}
}

func newArchivePruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old archive entries",
		Long: `Prune deletes old archive entries, keeping only the most recent N.

By default, keeps the 5 most recent entries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchivePrune(keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", archive.DefaultKeepCount, "Number of entries to keep")

	return cmd
}

func archiveManager() (*archive.Manager, error) {
	id, err := loadIdentity()
	if err != nil {
		return nil, err
	}
	return archive.NewManager(id.Name, upcastVersion)
}

// runArchiveList lists all archive entries.
func runArchiveList() error {
	manager, err := archiveManager()
	if err != nil {
		return err
	}

	entries, err := manager.List()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	if format != output.FormatText {
		return output.NewWriter(os.Stdout, format).Write(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No archived artifacts.")
		fmt.Printf("Archive directory: %s\n", manager.Dir())
		return nil
	}

	fmt.Printf("Artifacts stored in %s:\n\n", manager.Dir())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVersion\tArchived\tVerdict\tSize")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.Version,
			e.ArchivedAt.Format("2006-01-02 15:04:05"),
			e.Verdict,
			formatSize(e.Size),
		)
	}
	return w.Flush()
}

// runArchiveShow prints one entry's metadata.
func runArchiveShow(id string) error {
	manager, err := archiveManager()
	if err != nil {
		return err
	}

	entry, err := manager.Get(id)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format != output.FormatText {
		return output.NewWriter(os.Stdout, format).Write(entry)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", entry.ID)
	_, _ = fmt.Fprintf(w, "Version:\t%s\n", entry.Version)
	_, _ = fmt.Fprintf(w, "Archived:\t%s\n", entry.ArchivedAt.Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", entry.SourceURL)
	_, _ = fmt.Fprintf(w, "SHA-256:\t%s\n", entry.SHA256)
	_, _ = fmt.Fprintf(w, "Verdict:\t%s\n", entry.Verdict)
	_, _ = fmt.Fprintf(w, "Artifact:\t%s\n", manager.ArtifactPath(entry))
	return w.Flush()
}

// runArchiveDelete deletes an entry.
func runArchiveDelete(id string) error {
	manager, err := archiveManager()
	if err != nil {
		return err
	}

	if err := manager.Delete(id); err != nil {
		return err
	}

	fmt.Printf("Archive entry deleted: %s\n", id)
	return nil
}

// runArchivePrune removes old entries.
func runArchivePrune(keep int) error {
	manager, err := archiveManager()
	if err != nil {
		return err
	}

	result, err := manager.Prune(keep)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	if format != output.FormatText {
		return output.NewWriter(os.Stdout, format).Write(result)
	}

	if len(result.Deleted) == 0 {
		fmt.Printf("Nothing to prune. Keeping %d entries.\n", result.Kept)
		return nil
	}

	fmt.Printf("Pruned %d entry(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, e := range result.Deleted {
		fmt.Printf("  - %s (%s)\n", e.ID, e.ArchivedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/semver"
	"github.com/upcast-io/upcast/internal/state"
)

func newSkipCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "skip [version]",
		Short: "Skip a release or clear the skip record",
		Long: `Skip records a release so routine checks stop offering it. A forced
check ('upcast check --force') still offers a skipped release.

Examples:
  upcast skip 2.1.0       # Stop offering 2.1.0
  upcast skip --clear     # Offer everything again`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				return runSkipClear(cmd)
			}
			if len(args) != 1 {
				return fmt.Errorf("a version to skip is required (or --clear)")
			}
			return runSkip(cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the skip record")

	return cmd
}

func runSkip(cmd *cobra.Command, version string) error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}

	// Only parseable versions are ever offered, so only those are
	// worth recording.
	if _, err := semver.Parse(version); err != nil {
		return fmt.Errorf("cannot skip: %w", err)
	}
	if cmp, err := semver.CompareStrings(version, id.Version); err == nil && cmp <= 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Note: %s is not newer than the installed %s, routine checks would not offer it anyway.\n", version, id.Version)
	}

	store, err := state.NewStore(id.Name)
	if err != nil {
		return err
	}
	if err := store.SkipVersion(version); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Release %s will not be offered on routine checks.\n", version)
	return nil
}

func runSkipClear(cmd *cobra.Command) error {
	id, err := loadIdentity()
	if err != nil {
		return err
	}

	store, err := state.NewStore(id.Name)
	if err != nil {
		return err
	}
	if err := store.ClearSkippedVersion(); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Skip record cleared.")
	return nil
}

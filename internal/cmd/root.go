package cmd

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/logging"
)

var (
	// Global flags
	outputFormat string
	identityPath string
	quiet        bool

	logOpts = logging.NewOptions()
	rootLog logr.Logger
)

// upcastVersion is set during command initialization.
var upcastVersion = "dev"

// SetVersion sets the agent version recorded in archive metadata.
func SetVersion(version string) {
	upcastVersion = version
}

func Execute(version, commit, date string) error {
	SetVersion(version)

	rootCmd := &cobra.Command{
		Use:   "upcast",
		Short: "Keep a desktop application up to date from a release feed",
		Long: `upcast checks a release feed on behalf of an installed application,
decides whether an update is on offer, downloads the artifact and
verifies its signature before anything touches the installation.

The application it acts for is described by an identity file, see
'upcast init'.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			rootLog, err = logging.New(logOpts)
			return err
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("upcast %s (commit %s, built %s)\n", version, commit, date))

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&identityPath, "identity", "i", "", "Path to the identity file")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	logOpts.AddFlags(rootCmd.PersistentFlags())

	// Add subcommands
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newSkipCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newSignCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd.Execute()
}

// Package apply installs a verified artifact over a target executable.
// It only ever runs after the trust gate has passed; nothing here checks
// signatures again.
package apply

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/inconshreveable/go-update"
)

// Options controls how an artifact is installed.
type Options struct {
	// TargetPath is the executable to replace. Empty means the current
	// executable.
	TargetPath string
	// RestartCommand, when set, runs after a successful swap. Typically
	// a service reload or the application's own restart helper.
	RestartCommand []string
}

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, error)
}

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct{}

func (r *DefaultCommandRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// Installer swaps artifacts into place.
type Installer struct {
	runner CommandRunner
}

// NewInstaller creates an installer using the real command runner.
func NewInstaller() *Installer {
	return &Installer{runner: &DefaultCommandRunner{}}
}

// NewInstallerWithRunner creates an installer with a custom runner (for testing).
func NewInstallerWithRunner(runner CommandRunner) *Installer {
	return &Installer{runner: runner}
}

// Install replaces the target executable with the artifact at path.
// A failed swap restores the previous binary before returning.
func (ins *Installer) Install(artifactPath string, opts Options) error {
	f, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	err = update.Apply(f, update.Options{TargetPath: opts.TargetPath})
	if err != nil {
		if rerr := update.RollbackError(err); rerr != nil {
			return fmt.Errorf("failed to rollback from bad update: %w", rerr)
		}
		return fmt.Errorf("failed to apply update: %w", err)
	}

	if len(opts.RestartCommand) > 0 {
		name := opts.RestartCommand[0]
		args := opts.RestartCommand[1:]
		output, err := ins.runner.Run(name, args...)
		if err != nil {
			return fmt.Errorf("update applied but restart command failed: %w\nOutput: %s", err, string(output))
		}
	}

	return nil
}

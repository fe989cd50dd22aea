// Package interactive provides the terminal surfaces of the agent: a
// prompt for confirming offered updates and a notifier that prints
// lifecycle events.
package interactive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/upcast-io/upcast/internal/agent"
	"github.com/upcast-io/upcast/internal/feed"
)

// Prompter asks the user whether to install an offered update. It
// implements agent.Confirmer and agent.Continuer.
type Prompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// NewPrompter creates a prompter with stdin/stdout.
func NewPrompter() *Prompter {
	return NewPrompterWithIO(os.Stdin, os.Stdout)
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:      in,
		out:     out,
		scanner: bufio.NewScanner(in),
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Confirm asks about one offered release. A closed input declines: a
// dead pipe must never install anything.
func (p *Prompter) Confirm(_ context.Context, f *feed.Feed) (agent.Response, error) {
	_, _ = fmt.Fprintf(p.out, "Install version %s now? [y/n/s] (yes / not now / skip this release) ", f.Version)

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return agent.Decline, err
		}
		return agent.Decline, nil
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return agent.Accept, nil
	case "n", "no":
		return agent.Decline, nil
	case "s", "skip":
		_, _ = fmt.Fprintf(p.out, "Skipping %s, it will not be offered again.\n", f.Version)
		return agent.Skip, nil
	default:
		_, _ = fmt.Fprintln(p.out, "Invalid response, not installing.")
		return agent.Decline, nil
	}
}

// Continue asks once more after the download, before verification. The
// user already accepted the offer, so an empty answer proceeds; a
// closed input cancels.
func (p *Prompter) Continue(_ context.Context, f *feed.Feed, artifactPath string) (bool, error) {
	_, _ = fmt.Fprintf(p.out, "Verify and stage version %s now? [Y/n] ", f.Version)

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return false, err
		}
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(p.scanner.Text())) {
	case "", "y", "yes":
		return true, nil
	default:
		_, _ = fmt.Fprintln(p.out, "Discarding the downloaded artifact.")
		return false, nil
	}
}

// ConsoleNotifier prints lifecycle notifications to a terminal. It
// implements agent.Notifier.
type ConsoleNotifier struct {
	out io.Writer
}

// NewConsoleNotifier creates a notifier writing to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (c *ConsoleNotifier) FeedAvailable(f *feed.Feed) {
	_, _ = fmt.Fprintf(c.out, "Feed offers version %s\n", f.Version)
}

func (c *ConsoleNotifier) NoUpdate(currentVersion string) {
	_, _ = fmt.Fprintf(c.out, "You are up to date (version %s).\n", currentVersion)
}

func (c *ConsoleNotifier) UpdateOffered(f *feed.Feed) {
	_, _ = fmt.Fprintf(c.out, "Update available: version %s\n", f.Version)
}

func (c *ConsoleNotifier) ArtifactDownloaded(f *feed.Feed, path string) {
	_, _ = fmt.Fprintf(c.out, "Downloaded %s\n", path)
}

func (c *ConsoleNotifier) UpdateReady(f *feed.Feed, path string) {
	_, _ = fmt.Fprintf(c.out, "Version %s is ready to install: %s\n", f.Version, path)
}

func (c *ConsoleNotifier) UpdateRejected(f *feed.Feed, err error) {
	_, _ = fmt.Fprintf(c.out, "Version %s was REJECTED: %v\n", f.Version, err)
}

func (c *ConsoleNotifier) CheckFailed(err error) {
	_, _ = fmt.Fprintf(c.out, "Update check failed: %v\n", err)
}

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/upcast-io/upcast/internal/identity"
	"github.com/upcast-io/upcast/internal/templates"
)

func newInitCmd() *cobra.Command {
	var templateName string
	var outputPath string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new identity file from a template",
		Long: `Create a new identity file from a built-in or custom template.

Available templates:
  minimal    - Name, version and feed URL only
  full       - Every setting, with comments
  s3         - Feed served from an S3 bucket

Examples:
  upcast init                              # Interactive mode
  upcast init --template=minimal           # Direct template selection
  upcast init --template=https://...       # Custom template URL
  upcast init --identity ~/app/identity.yaml   # Custom output location`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), templateName, outputPath, force)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name or URL")
	cmd.Flags().StringVar(&outputPath, "path", "", "Output path for the identity file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing identity file")

	// Register completion for template flag
	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		templateList := templates.List()
		var completions []string
		for _, name := range templateList {
			desc := templates.GetDescription(name)
			completions = append(completions, fmt.Sprintf("%s\t%s", name, desc))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit executes the init workflow.
func runInit(stdin io.Reader, stdout, stderr io.Writer, templateName, outputPath string, force bool) error {
	reader := bufio.NewReader(stdin)

	// Determine output path, the --identity flag wins
	if outputPath == "" {
		outputPath = identityPath
	}
	if outputPath == "" {
		outputPath = identity.DefaultPath()
	}

	// Expand ~ in path
	outputPath = expandHomePath(outputPath)

	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Identity file already exists at %s\n", outputPath)
		_, _ = fmt.Fprintf(stdout, "Overwrite? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	// Get template content
	var content []byte
	var selectedTemplate string

	if templateName == "" {
		// Interactive mode
		selected, err := selectTemplateInteractive(reader, stdout)
		if err != nil {
			return err
		}
		templateName = selected
	}

	// Check if it's a URL
	if strings.HasPrefix(templateName, "http://") || strings.HasPrefix(templateName, "https://") {
		var err error
		content, err = fetchRemoteTemplate(templateName)
		if err != nil {
			return fmt.Errorf("failed to fetch template: %w", err)
		}
		selectedTemplate = "custom"
	} else {
		// Built-in template
		tmpl, err := templates.GetExpanded(templateName)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		content = tmpl.Content
		selectedTemplate = templateName
	}

	// Validate the template content before writing
	if err := validateTemplateContent(content); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	// Show preview in interactive mode
	if selectedTemplate != "custom" && !quiet {
		_, _ = fmt.Fprintf(stdout, "\nPreview of '%s' template:\n", selectedTemplate)
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
		_, _ = fmt.Fprintln(stdout, string(content))
		_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
	}

	// Ensure parent directory exists
	parentDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", parentDir, err)
	}

	// Write the file
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", outputPath)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	_, _ = fmt.Fprintln(stdout, "  1. Edit the identity: application name, installed version, feed URL")
	_, _ = fmt.Fprintln(stdout, "  2. Run 'upcast check' to try it")
	_, _ = fmt.Fprintln(stdout, "  3. Run 'upcast watch' to check on a schedule")

	return nil
}

// selectTemplateInteractive shows an interactive menu for template selection.
func selectTemplateInteractive(reader *bufio.Reader, stdout io.Writer) (string, error) {
	templateList := templates.List()

	_, _ = fmt.Fprintln(stdout, "\nSelect an identity template:")
	for i, name := range templateList {
		desc := templates.GetDescription(name)
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, name, desc)
	}
	_, _ = fmt.Fprintf(stdout, "  %d. %-12s - Provide custom template URL\n", len(templateList)+1, "custom")

	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", len(templateList)+1)

	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.TrimSpace(answer)

	// Parse selection
	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(templateList)+1 {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}

	if num == len(templateList)+1 {
		// Custom template URL
		_, _ = fmt.Fprint(stdout, "Enter template URL: ")
		url, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read URL: %w", err)
		}
		return strings.TrimSpace(url), nil
	}

	return templateList[num-1], nil
}

// fetchRemoteTemplate downloads a template from a URL.
func fetchRemoteTemplate(url string) ([]byte, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return content, nil
}

// validateTemplateContent validates that the content is a loadable identity.
func validateTemplateContent(content []byte) error {
	// We create a temporary file to leverage the existing Load function
	tmpFile, err := os.CreateTemp("", "identity-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	_, err = identity.Load(tmpName)
	return err
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

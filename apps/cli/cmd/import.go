package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/import/curl"
	"github.com/abdul-hamid-achik/reqly/packages/workspace"
)

var (
	importOutputFlag  string
	importNoTestsFlag bool
	importForceFlag   bool
)

var importCmd = &cobra.Command{
	Use:   "import <format> <source>",
	Short: "Import requests from other formats",
	Long: `Import requests from other formats and convert them to reqly request files.

Supported formats:
  curl - curl command lines, one per line or continued with a trailing backslash`,
}

var importCurlCmd = &cobra.Command{
	Use:   "curl <file|->",
	Short: "Import curl commands",
	Long: `Import curl commands from a file, or from stdin with "-".

Each command becomes one request file with a status test script. Without
--output the files are printed as a YAML stream.

Examples:
  reqly import curl commands.txt
  pbpaste | reqly import curl - -o requests/
  reqly import curl commands.txt -o requests/ --no-tests`,
	Args: cobra.ExactArgs(1),
	RunE: importCurlCommand,
}

func init() {
	importCurlCmd.Flags().StringVarP(&importOutputFlag, "output", "o", "", "Output directory (default: stdout)")
	importCurlCmd.Flags().BoolVar(&importNoTestsFlag, "no-tests", false, "Don't generate a status test script")
	importCurlCmd.Flags().BoolVar(&importForceFlag, "force", false, "Overwrite existing request files")

	importCmd.AddCommand(importCurlCmd)
}

func importCurlCommand(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("failed to open source: %w", err)}
		}
		defer f.Close()
		r = f
	}

	converter := curl.NewConverter(curl.WithTests(!importNoTestsFlag))
	converted, err := converter.ConvertAll(r)
	if err != nil {
		return &ExitError{Code: ExitParseError, Err: err}
	}
	if len(converted) == 0 {
		return &ExitError{Code: ExitParseError, Err: fmt.Errorf("no curl commands found")}
	}

	out := cmd.OutOrStdout()
	if importOutputFlag == "" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		for _, c := range converted {
			if err := enc.Encode(c.Request); err != nil {
				return fmt.Errorf("failed to encode request: %w", err)
			}
		}
		return enc.Close()
	}

	for _, c := range converted {
		path := filepath.Join(importOutputFlag, c.FileName)
		if _, err := os.Stat(path); err == nil && !importForceFlag {
			return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("%s already exists (use --force to overwrite)", path)}
		}
		if err := workspace.SaveRequest(c.Request, path); err != nil {
			return err
		}
		logger.Info("imported request", "file", path, "method", c.Request.Method, "url", c.Request.URL)
		fmt.Fprintf(out, "Imported %s\n", path)
	}
	return nil
}

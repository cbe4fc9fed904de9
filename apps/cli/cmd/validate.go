package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqly/packages/core/env"
)

var validateStrictFlag bool

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate request files without sending them",
	Long: `Parse request files, their scripts and environments, and report variables
that no scope defines.

Undefined variables are warnings unless --strict is set.

Examples:
  reqly validate requests/get-user.yaml
  reqly validate requests/ --env staging --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("REQLY_ENV", ""), "Environment name to validate against (env: REQLY_ENV)")
	validateCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("REQLY_ENV_FILE", ""), "Path to an environment file (env: REQLY_ENV_FILE)")
	validateCmd.Flags().BoolVar(&validateStrictFlag, "strict", false, "Treat undefined variables as errors")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}
	if len(files) == 0 {
		return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("no request files found")}
	}

	jobs, loadErrs := loadJobs(files)
	for _, err := range loadErrs {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}

	missingAny := false
	for _, job := range jobs {
		resolver := env.NewResolver(append([]env.Scope{job.Environment}, job.Scopes...)...)
		missing := resolver.ValidateRequest(job.Request)
		if len(missing) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", job.Request.ID)
			continue
		}
		missingAny = true
		fmt.Fprintf(cmd.OutOrStdout(), "Undefined variables in %s: %s\n", job.Request.ID, strings.Join(missing, ", "))
	}

	if len(loadErrs) > 0 {
		return &ExitError{Code: ExitParseError, Err: fmt.Errorf("validation failed")}
	}
	if missingAny && validateStrictFlag {
		return &ExitError{Code: ExitConfigError, Err: fmt.Errorf("undefined variables")}
	}
	return nil
}

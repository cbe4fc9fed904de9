package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqly/packages/workspace"
)

var listCmd = &cobra.Command{
	Use:   "list [directory]",
	Short: "List request files and environments",
	Long: `List the request files and environments of a workspace directory.

Examples:
  reqly list
  reqly list ./api`,
	Args: cobra.MaximumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	files, err := workspace.ListRequests(dir)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Requests:\n")
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  (none)\n")
	}
	for _, file := range files {
		req, err := workspace.LoadRequest(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s  %s %s\n", req.Config.Name, req.Config.Method, req.Config.URL)
		if len(req.Scripts) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "    scripts: %d\n", len(req.Scripts))
		}
	}

	envs, err := workspace.ListEnvironments(dir)
	if err != nil {
		return err
	}
	if len(envs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "\nEnvironments:\n")
		for _, name := range envs {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
		}
	}
	return nil
}

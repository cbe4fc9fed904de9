package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqly/packages/core/config"
	"github.com/abdul-hamid-achik/reqly/packages/workspace"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a new reqly workspace",
	Long: `Initialize a new reqly workspace.

This creates:
  - reqly.config.json          - Configuration file
  - environments/dev.yaml      - Example environment
  - requests/get-user.yaml     - Example request with scripts
  - requests/create-user.yaml  - Example JSON request

Examples:
  reqly init
  reqly init ./api --force`,
	Args: cobra.MaximumNArgs(1),
	// init writes the config, it does not read it
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	configFile := filepath.Join(dir, "reqly.config.json")
	envFile := filepath.Join(dir, workspace.EnvironmentsDir, "dev.yaml")
	getFile := filepath.Join(dir, "requests", "get-user.yaml")
	createFile := filepath.Join(dir, "requests", "create-user.yaml")

	if !forceInit {
		for _, f := range []string{configFile, envFile, getFile, createFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(envFile), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	projectConfig := config.DefaultConfig()
	projectConfig.DefaultEnvironment = "dev"
	projectConfig.Headers = map[string]string{"User-Agent": "reqly/" + version}
	if err := projectConfig.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	envYAML, err := yaml.Marshal(map[string]any{
		"name": "dev",
		"variables": map[string]string{
			"baseUrl": "https://jsonplaceholder.typicode.com",
			"userId":  "1",
		},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(envFile, envYAML, 0644); err != nil {
		return fmt.Errorf("failed to create environment file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", envFile)

	for path, rf := range exampleRequests() {
		if err := workspace.SaveRequest(rf, filepath.Join(dir, "requests", path)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", filepath.Join(dir, "requests", path))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nreqly workspace initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'reqly send requests/' to send the example requests.\n")
	return nil
}

func exampleRequests() map[string]*workspace.RequestFile {
	return map[string]*workspace.RequestFile{
		"get-user.yaml": {
			Name:   "Get user",
			Method: "GET",
			URL:    "{{baseUrl}}/users/{{userId}}",
			Headers: workspace.Pairs{
				{Key: "Accept", Value: "application/json", Enabled: true},
			},
			Scripts: workspace.ScriptsSpec{
				PreRequest: []workspace.ScriptSpec{{
					Name: "trace id",
					Code: `pm.request.headers.upsert({ key: "X-Request-Id", value: "{{$guid}}" });` + "\n",
				}},
				Test: []workspace.ScriptSpec{{
					Name: "user checks",
					Code: `pm.test("status is 200", () => pm.response.to.have.status(200));
pm.test("has an email", () => {
  const user = pm.response.json();
  pm.expect(user).to.have.property("email");
  pm.environment.set("userEmail", user.email);
});
`,
				}},
			},
		},
		"create-user.yaml": {
			Name:   "Create user",
			Method: "POST",
			URL:    "{{baseUrl}}/users",
			Body: &workspace.BodySpec{
				Type: "json",
				Content: yaml.Node{
					Kind:  yaml.ScalarNode,
					Style: yaml.LiteralStyle,
					Value: "{\n  \"name\": \"Ada Lovelace\",\n  \"email\": \"{{$randomEmail}}\"\n}\n",
				},
			},
			Scripts: workspace.ScriptsSpec{
				Test: []workspace.ScriptSpec{{
					Name: "created",
					Code: `pm.test("status is 201", () => pm.response.to.have.status(201));` + "\n",
				}},
			},
		},
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/reqly/packages/builtin"
	"github.com/abdul-hamid-achik/reqly/packages/core/env"
	"github.com/abdul-hamid-achik/reqly/packages/core/model"
	"github.com/abdul-hamid-achik/reqly/packages/core/runner"
	"github.com/abdul-hamid-achik/reqly/packages/db"
	"github.com/abdul-hamid-achik/reqly/packages/output"
	"github.com/abdul-hamid-achik/reqly/packages/workspace"
)

var sendCmd = &cobra.Command{
	Use:   "send <file|directory>...",
	Short: "Send requests and run their scripts",
	Long: `Send the requests described in YAML request files, run their pre-request
and test scripts, and print the responses and test results.

Variables resolve from pre-request script writes, then the environment, then
dynamic variables such as {{$guid}}, then REQLY_VAR_* process variables.

Examples:
  reqly send requests/get-user.yaml
  reqly send requests/ --env staging
  reqly send login.yaml --env-file .env.local -o json
  reqly send api.yaml --relay --relay-url http://127.0.0.1:8765/proxy
  reqly send requests/ --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: sendCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond

	// VariablePrefix exposes process variables to requests, e.g.
	// REQLY_VAR_token becomes {{token}}.
	VariablePrefix = "REQLY_VAR_"
)

var (
	envFlag           string
	envFileFlag       string
	outputFlag        string
	outputFileFlag    string
	relayFlag         bool
	relayURLFlag      string
	timeoutFlag       string
	scriptTimeoutFlag string
	strictFlag        bool
	insecureFlag      bool
	watchFlag         bool
	noHistoryFlag     bool
	bailFlag          bool
	concurrencyFlag   int
	quietFlag         bool
)

func init() {
	// Environment flags
	sendCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("REQLY_ENV", ""), "Environment name to use (env: REQLY_ENV)")
	sendCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("REQLY_ENV_FILE", ""), "Path to an environment file, YAML or .env (env: REQLY_ENV_FILE)")

	// Output flags
	sendCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("REQLY_OUTPUT", "console"), "Output format: console, json (env: REQLY_OUTPUT)")
	sendCmd.Flags().StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
	sendCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Print only test results")

	// Transport flags
	sendCmd.Flags().BoolVar(&relayFlag, "relay", false, "Send every request through the relay")
	sendCmd.Flags().StringVar(&relayURLFlag, "relay-url", "", "Relay endpoint; implies --relay")
	sendCmd.Flags().StringVar(&timeoutFlag, "timeout", "", "Request timeout (e.g., 30s, 1m); overrides config")
	sendCmd.Flags().StringVar(&scriptTimeoutFlag, "script-timeout", "", "Per-script execution cap (e.g., 500ms); 0 disables")
	sendCmd.Flags().BoolVar(&strictFlag, "strict", false, "Fail requests that reference undefined variables")
	sendCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", false, "Disable SSL certificate validation")

	// Execution flags
	sendCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-send")
	sendCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "Do not record history or results")
	sendCmd.Flags().BoolVar(&bailFlag, "bail", false, "Send in order and stop at the first failing request")
	sendCmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Number of requests sent at once (default from config)")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatOutcome(outcome *runner.Outcome)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

func newFormatter(w io.Writer) (Formatter, error) {
	switch strings.ToLower(outputFlag) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w)), nil
	case "console", "":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(cfg.GetVerbose()),
			output.WithNoColor(cfg.GetNoColor() || outputFileFlag != ""),
			output.WithQuiet(quietFlag),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console or json)", outputFlag)
	}
}

func sendCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := collectFiles(args)
	if err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}
	if len(files) == 0 {
		return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("no request files found")}
	}

	runnerCfg, err := buildRunnerConfig()
	if err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}

	opts := []runner.Option{runner.WithLogger(logger)}
	if !noHistoryFlag {
		store, err := openHistory(cfg.HistoryPath)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Err: err}
		}
		defer store.Close()
		opts = append(opts, runner.WithHistory(store), runner.WithResultStore(store))
	}
	r := runner.NewRunner(runnerCfg, opts...)

	var out io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if _, err := newFormatter(out); err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}

	code := sendOnce(ctx, r, files, out)
	if !watchFlag {
		if code != ExitSuccess {
			return &ExitError{Code: code}
		}
		return nil
	}

	return watch(ctx, cmd.OutOrStdout(), args, files, func() {
		files, err := collectFiles(args)
		if err != nil {
			logger.Error("cannot collect files", "error", err)
			return
		}
		sendOnce(ctx, r, files, out)
	})
}

// sendOnce loads every file, runs the jobs and prints the outcomes. It
// returns the exit code for the run.
func sendOnce(ctx context.Context, r *runner.Runner, files []string, out io.Writer) int {
	formatter, _ := newFormatter(out)
	formatter.FormatHeader(version)

	jobs, loadErrs := loadJobs(files)
	for _, err := range loadErrs {
		formatter.FormatError(err)
	}

	result := r.RunAll(ctx, jobs)
	for i, o := range result.Outcomes {
		if o == nil {
			if result.Errors[i] != nil {
				formatter.FormatError(fmt.Errorf("%s: %w", jobs[i].Request.ID, result.Errors[i]))
			}
			continue
		}
		formatter.FormatOutcome(o)
	}

	if flushable, ok := formatter.(Flushable); ok {
		if err := flushable.Flush(result.Duration); err != nil {
			logger.Error("error writing output", "error", err)
		}
	}
	return exitCode(result, len(loadErrs))
}

func exitCode(result *runner.RunResult, loadErrors int) int {
	if loadErrors > 0 {
		return ExitParseError
	}
	for _, o := range result.Outcomes {
		if o != nil && o.Response.IsNetworkError() {
			return ExitNetworkError
		}
	}
	if result.Failed > 0 {
		return ExitTestFailure
	}
	return ExitSuccess
}

func buildRunnerConfig() (*runner.Config, error) {
	timeout := cfg.TimeoutDuration()
	if timeoutFlag != "" {
		d, err := parseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		timeout = d
	}
	scriptTimeout := cfg.ScriptTimeoutDuration()
	if scriptTimeoutFlag != "" {
		d, err := parseDuration(scriptTimeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid script timeout value %q: %w", scriptTimeoutFlag, err)
		}
		scriptTimeout = d
	}

	relayURL := cfg.RelayURL
	if relayURLFlag != "" {
		relayURL = relayURLFlag
	}
	concurrency := cfg.Concurrency
	if concurrencyFlag > 0 {
		concurrency = concurrencyFlag
	}

	return &runner.Config{
		Timeout:         timeout,
		ScriptTimeout:   scriptTimeout,
		FollowRedirect:  cfg.GetFollowRedirects(),
		MaxRedirects:    cfg.MaxRedirects,
		Insecure:        insecureFlag || !cfg.GetValidateSSL(),
		DefaultHeaders:  cfg.Headers,
		RelayURL:        relayURL,
		RelayAPIKey:     cfg.RelayAPIKey,
		StrictVariables: strictFlag || cfg.GetStrictVariables(),
		Concurrency:     concurrency,
		Bail:            bailFlag,
	}, nil
}

// parseDuration accepts Go durations and bare millisecond counts.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func openHistory(path string) (*db.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// loadJobs turns request files into runner jobs. Files that fail to load are
// reported and skipped.
func loadJobs(files []string) ([]runner.Job, []error) {
	scopes := []env.Scope{builtin.NewScope(), env.SystemScope(VariablePrefix)}

	var jobs []runner.Job
	var errs []error
	for _, file := range files {
		req, err := workspace.LoadRequest(file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		environment, err := environmentFor(req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		if relayFlag || relayURLFlag != "" {
			req.Config.Proxy.Enabled = true
		}
		jobs = append(jobs, runner.Job{
			Request:     req.Config,
			Scripts:     req.Scripts,
			Environment: environment,
			Scopes:      scopes,
		})
	}
	return jobs, errs
}

// environmentFor picks the environment of a request: --env-file, then --env,
// then the file's own environment, then the configured default.
func environmentFor(req *workspace.Request) (*model.Environment, error) {
	switch {
	case envFileFlag != "":
		return env.LoadEnvironment(envFileFlag)
	case envFlag != "":
		return findEnvironment(filepath.Dir(req.Path), envFlag)
	case req.EnvironmentPath != "":
		return env.LoadEnvironment(req.EnvironmentPath)
	case cfg.DefaultEnvironment != "":
		environment, err := findEnvironment(filepath.Dir(req.Path), cfg.DefaultEnvironment)
		if errors.Is(err, workspace.ErrEnvironmentNotFound) {
			logger.Debug("default environment not found", "environment", cfg.DefaultEnvironment)
			return nil, nil
		}
		return environment, err
	default:
		return nil, nil
	}
}

// findEnvironment looks next to the request file, then in the working directory.
func findEnvironment(dir, name string) (*model.Environment, error) {
	environment, err := workspace.FindEnvironment(dir, name)
	if errors.Is(err, workspace.ErrEnvironmentNotFound) && dir != "." {
		return workspace.FindEnvironment(".", name)
	}
	return environment, err
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if info.IsDir() {
			found, err := workspace.ListRequests(arg)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		} else {
			files = append(files, arg)
		}
	}
	return files, nil
}

// isWatchedFile reports whether a change to path should trigger a re-send.
func isWatchedFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".js", ".env":
		return true
	}
	return strings.HasPrefix(filepath.Base(path), ".env")
}

// watch re-runs rerun after request, script or environment files change,
// until ctx is cancelled.
func watch(ctx context.Context, w io.Writer, args, files []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("failed to watch directory", "dir", dir, "error", err)
			}
			watchedDirs[dir] = true
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && !watchedDirs[path] {
				_ = watcher.Add(path)
				watchedDirs[path] = true
			}
			return nil
		})
	}

	fmt.Fprintf(w, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce: each relevant event restarts the delay
	var debounce <-chan time.Time
	var changed string
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) && isWatchedFile(event.Name) {
				changed = event.Name
				debounce = time.After(WatchDebounceDelay)
			}
		case <-debounce:
			debounce = nil
			fmt.Fprintf(w, "\n\nFile changed: %s\nRe-sending...\n\n", changed)
			rerun()
			fmt.Fprintf(w, "\nWatching for changes... (press Ctrl+C to stop)\n")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

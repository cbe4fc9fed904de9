package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	reqlyhttp "github.com/abdul-hamid-achik/reqly/packages/http"
	"github.com/abdul-hamid-achik/reqly/packages/relay"
)

var (
	relayAddrFlag     string
	relayAPIKeyFlag   string
	relayRateFlag     float64
	relayTimeoutFlag  string
	relayInsecureFlag bool
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Serve the relay endpoint",
	Long: `Start the relay that performs requests on behalf of reqly clients.

The relay accepts POST /proxy with a JSON request envelope, performs the
request and returns the upstream status, headers and body. When an API key is
set, clients must send it in the X-API-Key header.

Examples:
  reqly relay
  reqly relay --addr 0.0.0.0:8765 --api-key secret
  reqly relay --rate 20`,
	Args: cobra.NoArgs,
	RunE: relayCommand,
}

func init() {
	relayCmd.Flags().StringVar(&relayAddrFlag, "addr", getEnvString("REQLY_RELAY_ADDR", relay.DefaultAddr), "Address to listen on (env: REQLY_RELAY_ADDR)")
	relayCmd.Flags().StringVar(&relayAPIKeyFlag, "api-key", "", "Required X-API-Key value (default from config relayApiKey)")
	relayCmd.Flags().Float64Var(&relayRateFlag, "rate", 0, "Maximum relayed requests per second (0 = unlimited)")
	relayCmd.Flags().StringVar(&relayTimeoutFlag, "timeout", "", "Upstream request timeout (default from config)")
	relayCmd.Flags().BoolVarP(&relayInsecureFlag, "insecure", "k", false, "Disable SSL certificate validation upstream")
}

func relayCommand(cmd *cobra.Command, args []string) error {
	timeout := cfg.TimeoutDuration()
	if relayTimeoutFlag != "" {
		d, err := parseDuration(relayTimeoutFlag)
		if err != nil {
			return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("invalid timeout value %q: %w", relayTimeoutFlag, err)}
		}
		timeout = d
	}
	apiKey := cfg.RelayAPIKey
	if relayAPIKeyFlag != "" {
		apiKey = relayAPIKeyFlag
	}

	client := reqlyhttp.NewClient(
		reqlyhttp.WithTimeout(timeout),
		reqlyhttp.WithFollowRedirects(cfg.GetFollowRedirects()),
		reqlyhttp.WithMaxRedirects(cfg.MaxRedirects),
		reqlyhttp.WithValidateSSL(cfg.GetValidateSSL() && !relayInsecureFlag),
	)
	server := relay.NewServer(
		relay.WithAddr(relayAddrFlag),
		relay.WithAPIKey(apiKey),
		relay.WithRateLimit(relayRateFlag),
		relay.WithClient(client),
		relay.WithLogger(logger),
	)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Relay listening on http://%s/proxy (press Ctrl+C to stop)\n", server.Addr())
	if err := server.Start(ctx); err != nil {
		return &ExitError{Code: ExitNetworkError, Err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nRelay stopped")
	return nil
}

// Command actions-server runs the Slack actions gateway as a standalone HTTP
// server: signature-verified interactive callbacks on /slack/actions, the
// direct S3 share endpoint, and a health route.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/slack-actions-gateway/internal/actions"
	"github.com/fpang/slack-actions-gateway/internal/config"
	"github.com/fpang/slack-actions-gateway/internal/gateway"
	"github.com/fpang/slack-actions-gateway/internal/logging"
	"github.com/fpang/slack-actions-gateway/internal/s3content"
	"github.com/fpang/slack-actions-gateway/internal/server"
	"github.com/fpang/slack-actions-gateway/internal/sigv4"
	"github.com/fpang/slack-actions-gateway/internal/slack"
)

// CLI flags
var (
	portFlag int
	hostFlag string
)

var rootCmd = &cobra.Command{
	Use:   "actions-server",
	Short: "Slack interactive actions gateway",
	Long: `actions-server receives Slack interactive-component callbacks, verifies
the request signature, and dispatches actions: chat messages, SigV4-signed
calls to the Kubernetes control API, and S3 content shares.

Examples:
  actions-server
  actions-server --port 8080
  actions-server --host 0.0.0.0 --port 3000`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.Flags().StringVar(&hostFlag, "host", "", "Bind host (overrides BIND_HOST)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg := config.Load()
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if hostFlag != "" {
		cfg.BindHost = hostFlag
	}

	ctx := context.Background()

	needsAWS := cfg.SlackBotToken == "" || cfg.SlackSigningSecret == "" ||
		(cfg.GatewayEnabled() && cfg.UseAPIGateway) || cfg.S3Enabled()

	var awsCfg aws.Config
	if needsAWS {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS config")
		}
	}

	if cfg.SlackBotToken == "" || cfg.SlackSigningSecret == "" {
		if err := cfg.LoadSecretsFromSSM(ctx, ssm.NewFromConfig(awsCfg)); err != nil {
			log.Fatal().Err(err).Msg("Failed to load Slack secrets from SSM")
		}
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	slackClient := slack.NewClient(cfg.SlackBotToken)

	var backend actions.Backend
	if cfg.GatewayEnabled() {
		gw, err := buildGatewayClient(cfg, awsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create backend API client")
		}
		backend = gw
	}

	var dispatchContent actions.ContentSharer
	var serverContent server.ContentSharer
	if cfg.S3Enabled() {
		s3Client := s3.NewFromConfig(awsCfg)
		manager, err := s3content.NewManager(s3Client, s3.NewPresignClient(s3Client), slackClient, cfg.PresignExpiry)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 content manager")
		}
		dispatchContent = manager
		serverContent = manager
	}

	dispatcher, err := actions.NewDispatcher(slackClient, backend, dispatchContent, cfg.S3Bucket, cfg.DefaultActionMessage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	srv, err := server.New(server.Options{
		SigningSecret:  cfg.SlackSigningSecret,
		Dispatcher:     dispatcher,
		Content:        serverContent,
		GatewayEnabled: cfg.GatewayEnabled(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	startup := logging.NewStartupLogger("actions-server").
		Feature("gateway", cfg.GatewayEnabled()).
		Feature("gatewaySigning", cfg.GatewayEnabled() && cfg.UseAPIGateway).
		Feature("s3", cfg.S3Enabled()).
		Config("bindHost", cfg.BindHost).
		Config("port", strconv.Itoa(cfg.Port)).
		InitDuration(time.Since(start))
	if cfg.APIGatewayURL != "" {
		startup.Endpoint("apiGateway", cfg.APIGatewayURL)
	}
	if cfg.K8sAPIURL != "" {
		startup.Endpoint("k8sApi", cfg.K8sAPIURL)
	}
	if cfg.S3Bucket != "" {
		startup.S3Bucket("content", cfg.S3Bucket)
	}
	startup.Log()

	addr := fmt.Sprintf("%s:%d", cfg.BindHost, cfg.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Starting actions gateway")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// buildGatewayClient creates the backend API client, signed through API
// Gateway or unsigned against the direct URL.
func buildGatewayClient(cfg *config.Config, awsCfg aws.Config) (*gateway.Client, error) {
	if cfg.UseAPIGateway {
		signer, err := sigv4.New("execute-api", cfg.AWSRegion, awsCfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
		return gateway.NewClient(cfg.APIGatewayURL, signer)
	}
	return gateway.NewClient(cfg.K8sAPIURL, nil)
}

// Package main provides the Lambda entry point for the Slack actions
// gateway, serving the same routes as actions-server behind API Gateway.
//
// Slack credentials are loaded from SSM Parameter Store at cold start:
//   - /slack-actions-gateway/prod/bot-token
//   - /slack-actions-gateway/prod/signing-secret
//
// (override with SSM_BOT_TOKEN_PARAM / SSM_SIGNING_SECRET_PARAM, or provide
// the values directly via SLACK_BOT_USER_OAUTH_TOKEN / SLACK_SIGNING_SECRET).
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slack-actions-gateway/internal/actions"
	"github.com/fpang/slack-actions-gateway/internal/config"
	"github.com/fpang/slack-actions-gateway/internal/gateway"
	"github.com/fpang/slack-actions-gateway/internal/logging"
	"github.com/fpang/slack-actions-gateway/internal/s3content"
	"github.com/fpang/slack-actions-gateway/internal/server"
	"github.com/fpang/slack-actions-gateway/internal/sigv4"
	"github.com/fpang/slack-actions-gateway/internal/slack"
)

var handler http.Handler

func init() {
	start := time.Now()
	logging.Init()

	ctx := context.Background()
	cfg := config.Load()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
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
		var signer gateway.RequestSigner
		baseURL := cfg.K8sAPIURL
		if cfg.UseAPIGateway {
			baseURL = cfg.APIGatewayURL
			s, err := sigv4.New("execute-api", cfg.AWSRegion, awsCfg.Credentials)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create signer")
			}
			signer = s
		}
		gw, err := gateway.NewClient(baseURL, signer)
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
	handler = srv.Handler()

	logging.NewStartupLogger("actions-lambda").
		Feature("gateway", cfg.GatewayEnabled()).
		Feature("s3", cfg.S3Enabled()).
		InitDuration(time.Since(start)).
		Log()
}

func main() {
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}

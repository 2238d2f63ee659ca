// Package config loads the gateway configuration from environment variables
// (optionally backfilling secrets from SSM Parameter Store) into an immutable
// struct that is constructed once at startup and passed into the verifier,
// signer, and dispatcher. Nothing reads configuration from ambient globals at
// request time.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// Defaults for optional settings.
const (
	DefaultBindHost      = "127.0.0.1"
	DefaultPort          = 3000
	DefaultMessage       = "Hello, world!"
	DefaultS3Prefix      = "slack-content/"
	DefaultPresignHours  = 24
	DefaultRegion        = "us-east-1"
	defaultBotTokenParam = "/slack-actions-gateway/prod/bot-token"
	defaultSigningParam  = "/slack-actions-gateway/prod/signing-secret"
)

// Config holds all process configuration. Fields are set once by Load and
// never mutated afterwards.
type Config struct {
	BindHost string
	Port     int

	// Slack credentials. Both are required for the process to start.
	SlackBotToken      string
	SlackSigningSecret string

	// DefaultActionMessage is the text posted by the message actions.
	DefaultActionMessage string

	// Backend API settings. APIGatewayURL is used (with SigV4 signing) when
	// UseAPIGateway is true; K8sAPIURL is the unsigned direct URL otherwise.
	// The gateway integration is enabled when either URL is set.
	APIGatewayURL string
	K8sAPIURL     string
	UseAPIGateway bool
	AWSRegion     string

	// S3 content settings. The S3 integration is enabled when S3Bucket is set.
	S3Bucket      string
	S3Prefix      string
	PresignExpiry time.Duration
}

// Load reads configuration from the environment. It does not validate;
// call Validate after secrets have been resolved.
func Load() *Config {
	return &Config{
		BindHost:             envOrDefault("BIND_HOST", DefaultBindHost),
		Port:                 envInt("PORT", DefaultPort),
		SlackBotToken:        os.Getenv("SLACK_BOT_USER_OAUTH_TOKEN"),
		SlackSigningSecret:   os.Getenv("SLACK_SIGNING_SECRET"),
		DefaultActionMessage: envOrDefault("DEFAULT_ACTION_MESSAGE", DefaultMessage),
		APIGatewayURL:        os.Getenv("API_GATEWAY_URL"),
		K8sAPIURL:            os.Getenv("K8S_API_URL"),
		UseAPIGateway:        envBool("USE_API_GATEWAY", true),
		AWSRegion:            envOrDefault("AWS_REGION", DefaultRegion),
		S3Bucket:             os.Getenv("S3_BUCKET"),
		S3Prefix:             envOrDefault("S3_PREFIX", DefaultS3Prefix),
		PresignExpiry:        time.Duration(envInt("PRESIGNED_URL_EXPIRATION_HOURS", DefaultPresignHours)) * time.Hour,
	}
}

// ParameterGetter is the subset of the SSM client used to resolve secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadSecretsFromSSM backfills the Slack credentials from SSM Parameter Store
// for any secret not already provided via the environment. Parameter paths
// may be overridden with SSM_BOT_TOKEN_PARAM and SSM_SIGNING_SECRET_PARAM.
func (c *Config) LoadSecretsFromSSM(ctx context.Context, client ParameterGetter) error {
	if c.SlackBotToken == "" {
		value, err := fetchParameter(ctx, client, envOrDefault("SSM_BOT_TOKEN_PARAM", defaultBotTokenParam))
		if err != nil {
			return fmt.Errorf("bot token from SSM: %w", err)
		}
		c.SlackBotToken = value
		log.Info().Msg("Slack bot token loaded from SSM")
	}

	if c.SlackSigningSecret == "" {
		value, err := fetchParameter(ctx, client, envOrDefault("SSM_SIGNING_SECRET_PARAM", defaultSigningParam))
		if err != nil {
			return fmt.Errorf("signing secret from SSM: %w", err)
		}
		c.SlackSigningSecret = value
		log.Info().Msg("Slack signing secret loaded from SSM")
	}

	return nil
}

func fetchParameter(ctx context.Context, client ParameterGetter, name string) (string, error) {
	start := time.Now()
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	log.Debug().Str("param", name).Dur("elapsed", time.Since(start)).Msg("SSM parameter loaded")
	return *result.Parameter.Value, nil
}

// Validate checks that all required settings are present. Required settings
// missing at startup refuse the process, never at first request.
func (c *Config) Validate() error {
	if c.SlackBotToken == "" {
		return fmt.Errorf("SLACK_BOT_USER_OAUTH_TOKEN is required")
	}
	if c.SlackSigningSecret == "" {
		return fmt.Errorf("SLACK_SIGNING_SECRET is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Port)
	}
	if c.GatewayEnabled() {
		if c.UseAPIGateway && c.APIGatewayURL == "" {
			return fmt.Errorf("API_GATEWAY_URL must be set when USE_API_GATEWAY is true")
		}
		if !c.UseAPIGateway && c.K8sAPIURL == "" {
			return fmt.Errorf("K8S_API_URL must be set when USE_API_GATEWAY is false")
		}
	}
	return nil
}

// GatewayEnabled reports whether the backend API integration is configured.
func (c *Config) GatewayEnabled() bool {
	return c.APIGatewayURL != "" || c.K8sAPIURL != ""
}

// S3Enabled reports whether the S3 content integration is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("envVar", key).Str("value", v).Msg("Not an integer — using default")
		return defaultVal
	}
	return n
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("envVar", key).Str("value", v).Msg("Not a boolean — using default")
		return defaultVal
	}
	return b
}

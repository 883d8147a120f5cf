package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
)

// SecretsAPI is the subset of the Secrets Manager client we use.
//
//go:generate mockgen -package=credentials -destination=mock_secrets_api_test.go -source=aws.go SecretsAPI
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager resolves secrets stored in AWS Secrets Manager. Secret
// ids are Prefix + name. JSON secrets are read from their "api_key" or
// "value" field; plain string secrets are the key itself.
type AWSSecretsManager struct {
	client SecretsAPI
	prefix string
	logger zerolog.Logger
}

type AWSOptions struct {
	Region string
	Prefix string
	Logger zerolog.Logger
}

func NewAWSSecretsManager(ctx context.Context, opts AWSOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewAWSSecretsManagerWithClient(secretsmanager.NewFromConfig(cfg), opts.Prefix, opts.Logger), nil
}

func NewAWSSecretsManagerWithClient(client SecretsAPI, prefix string, logger zerolog.Logger) *AWSSecretsManager {
	return &AWSSecretsManager{client: client, prefix: prefix, logger: logger}
}

func (s *AWSSecretsManager) Resolve(ctx context.Context, name string) Secret {
	if strings.TrimSpace(name) == "" {
		return Absent()
	}
	id := s.prefix + name
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		s.logger.Debug().Err(err).Str("secret", Mask(id)).Msg("secrets manager lookup failed")
		return Absent()
	}
	if out == nil || out.SecretString == nil {
		return Absent()
	}
	return parseSecretString(*out.SecretString)
}

func parseSecretString(raw string) Secret {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Present(trimmed)
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return Absent()
	}
	for _, k := range []string{"api_key", "value"} {
		if s := Present(fields[k]); s.IsPresent() {
			return s
		}
	}
	return Absent()
}

// Package secrets retrieves API credentials from AWS Secrets Manager. The
// secret value is a JSON object of named tokens.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// Manager reads named tokens out of a single secret.
type Manager struct {
	client   *secretsmanager.Client
	secretID string
}

// New builds a Manager over the default credentials chain.
func New(ctx context.Context, region, secretID string) (*Manager, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &Manager{client: secretsmanager.NewFromConfig(awsCfg), secretID: secretID}, nil
}

// Token fetches the secret and returns the token stored under key.
func (m *Manager) Token(ctx context.Context, key string) (string, error) {
	out, err := m.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &m.secretID,
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", m.secretID, err)
	}
	var values map[string]string
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", m.secretID)
	}
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return "", fmt.Errorf("decoding secret %s: %w", m.secretID, err)
	}
	token, ok := values[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", m.secretID, key)
	}
	return token, nil
}

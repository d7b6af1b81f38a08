// Package secrets loads credentials from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/wolfman30/healthcare-booking/pkg/logging"
)

// ErrNotConfigured is returned when neither a secret id nor an allowed
// fallback value is available.
var ErrNotConfigured = errors.New("secrets: secret not configured")

// ErrSecretMissing is returned when the configured id does not exist.
var ErrSecretMissing = errors.New("secrets: secret does not exist")

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches and caches secret values. An id of the form
// "name#field" selects one field of a JSON secret.
type Resolver struct {
	client        secretsAPI
	allowFallback bool
	logger        *logging.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver returns a resolver. allowFallback permits plain values from the
// environment and must be false in production.
func NewResolver(client secretsAPI, allowFallback bool, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{client: client, allowFallback: allowFallback, logger: logger, cache: make(map[string]string)}
}

// Resolve returns the secret named by id, or fallback when id is empty and
// fallbacks are allowed.
func (r *Resolver) Resolve(ctx context.Context, id, fallback string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		if r.allowFallback && fallback != "" {
			r.logger.Warn("using secret from environment, not allowed in production")
			return fallback, nil
		}
		return "", ErrNotConfigured
	}

	r.mu.Lock()
	cached, ok := r.cache[id]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	if r.client == nil {
		return "", fmt.Errorf("secrets: no secrets manager client for %q", id)
	}
	name, field, _ := strings.Cut(id, "#")
	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return "", fmt.Errorf("%w: %s", ErrSecretMissing, name)
		}
		return "", fmt.Errorf("secrets: get %s: %w", name, err)
	}
	value := aws.ToString(out.SecretString)
	if value == "" && len(out.SecretBinary) > 0 {
		value = string(out.SecretBinary)
	}
	if field != "" {
		var fields map[string]string
		if err := json.Unmarshal([]byte(value), &fields); err != nil {
			return "", fmt.Errorf("secrets: %s is not a JSON object: %w", name, err)
		}
		v, ok := fields[field]
		if !ok {
			return "", fmt.Errorf("secrets: %s has no field %q", name, field)
		}
		value = v
	}
	if value == "" {
		return "", fmt.Errorf("secrets: %s is empty", id)
	}

	r.mu.Lock()
	r.cache[id] = value
	r.mu.Unlock()
	return value, nil
}

// Optional resolves like Resolve but maps ErrNotConfigured to "".
func (r *Resolver) Optional(ctx context.Context, id, fallback string) (string, error) {
	v, err := r.Resolve(ctx, id, fallback)
	if errors.Is(err, ErrNotConfigured) {
		return "", nil
	}
	return v, err
}

package bootstrap

import (
	"context"
	"fmt"

	appconfig "github.com/wolfman30/healthcare-booking/internal/config"
	"github.com/wolfman30/healthcare-booking/internal/secrets"
)

// Credentials are the secret values the binaries need at startup.
type Credentials struct {
	JWTSecret      []byte
	AirtableToken  string
	SendGridAPIKey string
}

// ResolveCredentials loads every configured secret. The JWT signing key is
// mandatory; the integration credentials are optional and leave their
// integration disabled when absent.
func ResolveCredentials(ctx context.Context, cfg *appconfig.Config, resolver *secrets.Resolver) (*Credentials, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	jwtSecret, err := resolver.Resolve(ctx, cfg.AuthJWTSecretID, cfg.AuthJWTSecret)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: jwt secret: %w", err)
	}
	airtableToken, err := resolver.Optional(ctx, cfg.AirtableTokenSecretID, cfg.AirtableToken)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: airtable token: %w", err)
	}
	sendGridKey, err := resolver.Optional(ctx, cfg.SendGridAPIKeySecretID, cfg.SendGridAPIKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: sendgrid api key: %w", err)
	}
	return &Credentials{
		JWTSecret:      []byte(jwtSecret),
		AirtableToken:  airtableToken,
		SendGridAPIKey: sendGridKey,
	}, nil
}

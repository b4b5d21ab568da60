package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	vault "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"
)

const (
	approleSecretIDPath = "auth/approle/role/%s/secret-id"
	approleLoginPath    = "auth/approle/login"
)

// ErrClientInit indicates failure to initialize the Vault API client.
var ErrClientInit = errors.New("vault client initialization failed")

// ErrSecretNotFound indicates the configured secret path holds no
// usable GitHub token.
var ErrSecretNotFound = errors.New("vault secret not found")

type Option func(*config)

type config struct {
	address     string
	token       string
	approleName string
}

// Client reads the GitHub token from a Vault KV v2 secret, so the
// token never has to live in the config file or the environment.
type Client struct {
	api    *vault.Client
	config *config
}

// WithAddress sets the Vault server address.
func WithAddress(address string) Option {
	return func(c *config) {
		if address != "" {
			c.address = address
		}
	}
}

// WithToken sets a direct Vault token, bypassing AppRole login.
func WithToken(token string) Option {
	return func(c *config) {
		if token != "" {
			c.token = token
		}
	}
}

// WithAppRole enables AppRole login under the given role name.
func WithAppRole(name string) Option {
	return func(c *config) {
		if name != "" {
			c.approleName = name
		}
	}
}

// NewClient builds a Vault client and authenticates it. A VAULT_TOKEN
// from the environment takes precedence over AppRole login.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{token: os.Getenv("VAULT_TOKEN")}
	for _, opt := range opts {
		opt(cfg)
	}

	vaultCfg := vault.DefaultConfig()
	if cfg.address != "" {
		vaultCfg.Address = cfg.address
	}
	api, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClientInit, err)
	}

	client := &Client{api: api, config: cfg}
	switch {
	case cfg.token != "":
		api.SetToken(cfg.token)
	case cfg.approleName != "":
		if err := client.loginAppRole(ctx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: no token and no approle configured", ErrClientInit)
	}
	return client, nil
}

// loginAppRole performs the role-id/secret-id exchange and installs
// the resulting client token.
func (c *Client) loginAppRole(ctx context.Context) error {
	roleID := os.Getenv("VAULT_ROLE_ID")
	if roleID == "" {
		return fmt.Errorf("%w: VAULT_ROLE_ID is not set", ErrClientInit)
	}

	secret, err := c.api.Logical().WriteWithContext(ctx,
		fmt.Sprintf(approleSecretIDPath, c.config.approleName), nil)
	if err != nil {
		return fmt.Errorf("%w: generate secret-id: %v", ErrClientInit, err)
	}
	secretID, _ := secret.Data["secret_id"].(string)

	login, err := c.api.Logical().WriteWithContext(ctx, approleLoginPath, map[string]any{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return fmt.Errorf("%w: approle login: %v", ErrClientInit, err)
	}
	c.api.SetToken(login.Auth.ClientToken)
	return nil
}

// githubSecret is the expected KV payload shape.
type githubSecret struct {
	Token string `mapstructure:"token"`
}

// GitHubToken reads the GitHub token from the KV v2 secret at path
// (e.g. "secret/data/ghbackup/github").
func (c *Client) GitHubToken(ctx context.Context, path string) (string, error) {
	secret, err := c.api.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, path)
	}

	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}

	var payload githubSecret
	if err := mapstructure.Decode(data, &payload); err != nil {
		return "", fmt.Errorf("decode secret %q: %w", path, err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: %q has no token field", ErrSecretNotFound, path)
	}
	return payload.Token, nil
}

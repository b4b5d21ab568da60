package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML
// configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is
// invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config is the top-level YAML configuration.
type Config struct {
	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`
	Vault  VaultConfig  `mapstructure:"vault"  yaml:"vault"`
}

// GitHubConfig holds provider credentials and identity. The token may
// be left empty when Vault is configured as the token source.
type GitHubConfig struct {
	Token    string `mapstructure:"token"    yaml:"token,omitempty"`
	Username string `mapstructure:"username" yaml:"username"`
	Org      string `mapstructure:"org"      yaml:"org,omitempty"`
	PerPage  int    `mapstructure:"per_page" yaml:"per_page,omitempty"`
}

// BackupConfig contains snapshot engine options.
type BackupConfig struct {
	Directory          string        `mapstructure:"directory"           yaml:"directory"`
	WorkspaceDirectory string        `mapstructure:"workspace_directory" yaml:"workspace_directory,omitempty"`
	Concurrency        int           `mapstructure:"concurrency"         yaml:"concurrency,omitempty"`
	PageCap            int           `mapstructure:"page_cap"            yaml:"page_cap,omitempty"`
	RetryAttempts      int           `mapstructure:"retry_attempts"      yaml:"retry_attempts,omitempty"`
	Compress           bool          `mapstructure:"compress"            yaml:"compress,omitempty"`
	Timeout            time.Duration `mapstructure:"timeout"             yaml:"timeout,omitempty"`
}

// VaultConfig holds the optional HashiCorp Vault token source.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address,omitempty"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
	SecretPath  string `mapstructure:"secret_path"  yaml:"secret_path,omitempty"`
}

// Load reads the configuration from the given YAML file using Viper
// and unmarshals it into the Config struct. Environment variables
// (GHBACKUP_GITHUB_TOKEN and friends) override file values.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("ghbackup")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
	}
	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	c.applyDefaults()
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}
	home, _ := os.UserHomeDir()
	if c.Backup.Directory == "" {
		c.Backup.Directory = filepath.Join(home, "backups", "github")
	}
	if c.Backup.WorkspaceDirectory == "" {
		c.Backup.WorkspaceDirectory = filepath.Join(home, "workspace")
	}
	if c.Backup.Concurrency <= 0 {
		c.Backup.Concurrency = 3
	}
	if c.Backup.Timeout <= 0 {
		c.Backup.Timeout = 30 * time.Minute
	}

	// "~/..." paths from the config file must become real paths before
	// the resolver makes them absolute.
	if dir, err := homedir.Expand(c.Backup.Directory); err == nil {
		c.Backup.Directory = dir
	}
	if dir, err := homedir.Expand(c.Backup.WorkspaceDirectory); err == nil {
		c.Backup.WorkspaceDirectory = dir
	}
}

func (c *Config) validate() error {
	if c.GitHub.Token == "" && c.Vault.Address == "" {
		return fmt.Errorf("%w: no GitHub token and no Vault token source configured", ErrValidateConfig)
	}
	if c.Vault.Address != "" && c.Vault.SecretPath == "" {
		return fmt.Errorf("%w: vault.address set without vault.secret_path", ErrValidateConfig)
	}
	return nil
}

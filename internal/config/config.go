// Package config loads the daemon configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zerointrusion/vault-client/internal/biometric"
	"zerointrusion/vault-client/internal/crypto"
	"zerointrusion/vault-client/internal/hubclient"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Hub       HubConfig
	Biometric BiometricConfig
	Crypto    CryptoConfig
	Notify    NotifyConfig
	Router    RouterConfig
	Store     StoreConfig
	API       APIConfig
}

type HubConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Endpoints hubclient.Endpoints
}

type BiometricConfig struct {
	Policy string
}

type CryptoConfig struct {
	KDFHash string
}

type NotifyConfig struct {
	Window time.Duration
}

type RouterConfig struct {
	DuplicateWindow time.Duration
}

// StoreConfig selects the secret store. An empty Path keeps secrets in memory.
type StoreConfig struct {
	Path       string
	Passphrase string
}

// APIConfig configures the local API. An empty Token disables API auth.
type APIConfig struct {
	ListenAddr string
	Token      string
}

func Default() Config {
	return Config{
		Hub: HubConfig{
			Timeout:   15 * time.Second,
			Endpoints: hubclient.DefaultEndpoints(),
		},
		Biometric: BiometricConfig{Policy: biometric.PolicyStrongOnly.String()},
		Crypto:    CryptoConfig{KDFHash: string(crypto.HashSHA256)},
		Notify:    NotifyConfig{Window: 10 * time.Second},
		Router:    RouterConfig{DuplicateWindow: 3 * time.Second},
		API:       APIConfig{ListenAddr: "127.0.0.1:8787"},
	}
}

// FileConfig is the on-disk shape. Zero values leave defaults in place.
type FileConfig struct {
	Hub struct {
		BaseURL   string              `yaml:"baseURL"`
		Timeout   time.Duration       `yaml:"timeout"`
		Endpoints hubclient.Endpoints `yaml:"endpoints"`
	} `yaml:"hub"`
	Biometric struct {
		Policy string `yaml:"policy"`
	} `yaml:"biometric"`
	Crypto struct {
		KDFHash string `yaml:"kdfHash"`
	} `yaml:"crypto"`
	Notify struct {
		Window time.Duration `yaml:"window"`
	} `yaml:"notify"`
	Router struct {
		DuplicateWindow time.Duration `yaml:"duplicateWindow"`
	} `yaml:"router"`
	Store struct {
		Path       string `yaml:"path"`
		Passphrase string `yaml:"passphrase"`
	} `yaml:"store"`
	API struct {
		ListenAddr string `yaml:"listenAddr"`
		Token      string `yaml:"token"`
	} `yaml:"api"`
}

// LoadFromPath reads configPath, or the first readable candidate when it is
// empty, merges it over the defaults and applies environment overrides. An
// explicit path that cannot be read or parsed is an error; missing candidates
// are not.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{"configs/vault.yaml", "vault.yaml"}
	if configPath != "" {
		candidates = []string{configPath}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, parsed)
		break
	}
	ApplyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

func Merge(dst *Config, src FileConfig) {
	if src.Hub.BaseURL != "" {
		dst.Hub.BaseURL = src.Hub.BaseURL
	}
	if src.Hub.Timeout != 0 {
		dst.Hub.Timeout = src.Hub.Timeout
	}
	mergeEndpoints(&dst.Hub.Endpoints, src.Hub.Endpoints)
	if src.Biometric.Policy != "" {
		dst.Biometric.Policy = src.Biometric.Policy
	}
	if src.Crypto.KDFHash != "" {
		dst.Crypto.KDFHash = src.Crypto.KDFHash
	}
	if src.Notify.Window != 0 {
		dst.Notify.Window = src.Notify.Window
	}
	if src.Router.DuplicateWindow != 0 {
		dst.Router.DuplicateWindow = src.Router.DuplicateWindow
	}
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Store.Passphrase != "" {
		dst.Store.Passphrase = src.Store.Passphrase
	}
	if src.API.ListenAddr != "" {
		dst.API.ListenAddr = src.API.ListenAddr
	}
	if src.API.Token != "" {
		dst.API.Token = src.API.Token
	}
}

func mergeEndpoints(dst *hubclient.Endpoints, src hubclient.Endpoints) {
	pairs := []struct {
		dst *string
		src string
	}{
		{&dst.DeviceRegistration, src.DeviceRegistration},
		{&dst.RecoverySettings, src.RecoverySettings},
		{&dst.Registration, src.Registration},
		{&dst.EditApplication, src.EditApplication},
		{&dst.DomainLogin, src.DomainLogin},
		{&dst.ApplicationList, src.ApplicationList},
		{&dst.DomainCredentials, src.DomainCredentials},
		{&dst.ApplicationCredentials, src.ApplicationCredentials},
		{&dst.DeleteDomain, src.DeleteDomain},
		{&dst.DeleteApplication, src.DeleteApplication},
	}
	for _, p := range pairs {
		if v := strings.TrimSpace(p.src); v != "" {
			*p.dst = v
		}
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("VAULT_HUB_BASE_URL")); v != "" {
		cfg.Hub.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_BIOMETRIC_POLICY")); v != "" {
		cfg.Biometric.Policy = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_LISTEN_ADDR")); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_STORE_PATH")); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("VAULT_STORE_PASSPHRASE"); v != "" {
		cfg.Store.Passphrase = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_API_TOKEN")); v != "" {
		cfg.API.Token = v
	}
	raw := strings.TrimSpace(os.Getenv("VAULT_PROMPT_WINDOW"))
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return
	}
	cfg.Notify.Window = d
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Hub.BaseURL) == "" {
		return fmt.Errorf("%w: hub base url is required", ErrInvalid)
	}
	if _, err := biometric.ParsePolicy(c.Biometric.Policy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := crypto.ParseHashAlgorithm(c.Crypto.KDFHash); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Store.Path != "" && c.Store.Passphrase == "" {
		return fmt.Errorf("%w: store passphrase is required with a store path", ErrInvalid)
	}
	if c.Hub.Timeout <= 0 || c.Notify.Window <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	return nil
}

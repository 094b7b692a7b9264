package sharepoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Значения по умолчанию.
const (
	DefaultGraphURL          = "https://graph.microsoft.com/v1.0"
	DefaultAuthorityURL      = "https://login.microsoftonline.com"
	DefaultRequestsPerSecond = 5.0
	DefaultMaxRetries        = 3
	DefaultTimeout           = 300 * time.Second
	DefaultLinkScope         = "organization"

	// TokenCacheKeyring — delegated-токены хранятся в системном keychain.
	TokenCacheKeyring = "keyring"
	// TokenCacheNone — токены не сохраняются, device code запрашивается каждый раз.
	TokenCacheNone = "none"

	clientSecretEnv = "SHAREPOINT_CLIENT_SECRET"
)

// DefaultDelegatedScopes — права delegated-сессии.
var DefaultDelegatedScopes = []string{
	"Files.ReadWrite.All",
	"Sites.Read.All",
	"Mail.Send",
	"offline_access",
}

// Config — конфигурация сессии SharePoint.
type Config struct {
	TenantID     string `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`

	// Hostname — хост SharePoint, например contoso.sharepoint.com.
	Hostname string `json:"hostname" yaml:"hostname"`

	GraphURL     string   `json:"graph_url" yaml:"graph_url"`
	AuthorityURL string   `json:"authority_url" yaml:"authority_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`

	// Sender — почтовый ящик отправителя для app-only уведомлений.
	Sender string `json:"sender" yaml:"sender"`

	LinkScope         string  `json:"link_scope" yaml:"link_scope"`
	TokenCache        string  `json:"token_cache" yaml:"token_cache"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`
	TimeoutSec        int     `json:"timeout_sec" yaml:"timeout_sec"`
}

// LoadConfig читает конфигурацию сессии из JSON или YAML файла.
// Переменная SHAREPOINT_CLIENT_SECRET переопределяет client_secret.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file not found: %s", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("read sharepoint config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	if secret := os.Getenv(clientSecretEnv); secret != "" {
		cfg.ClientSecret = secret
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults заполняет незаданные поля.
func (c *Config) ApplyDefaults() {
	if c.GraphURL == "" {
		c.GraphURL = DefaultGraphURL
	}
	c.GraphURL = strings.TrimRight(c.GraphURL, "/")
	if c.AuthorityURL == "" {
		c.AuthorityURL = DefaultAuthorityURL
	}
	c.AuthorityURL = strings.TrimRight(c.AuthorityURL, "/")
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultDelegatedScopes
	}
	if c.LinkScope == "" {
		c.LinkScope = DefaultLinkScope
	}
	if c.TokenCache == "" {
		c.TokenCache = TokenCacheKeyring
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	// Отрицательное значение отключает повторы.
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Validate проверяет обязательные поля.
func (c *Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrInvalidConfig)
	}
	if c.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidConfig)
	}
	if _, err := url.Parse(c.GraphURL); err != nil {
		return fmt.Errorf("%w: graph_url: %v", ErrInvalidConfig, err)
	}
	switch c.TokenCache {
	case TokenCacheKeyring, TokenCacheNone:
	default:
		return fmt.Errorf("%w: token_cache must be %q or %q", ErrInvalidConfig, TokenCacheKeyring, TokenCacheNone)
	}
	return nil
}

// Timeout возвращает таймаут HTTP-запроса.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSec > 0 {
		return time.Duration(c.TimeoutSec) * time.Second
	}
	return DefaultTimeout
}

// tokenURL — endpoint выдачи токенов Entra ID.
func (c *Config) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.AuthorityURL, c.TenantID)
}

func (c *Config) authURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize", c.AuthorityURL, c.TenantID)
}

func (c *Config) deviceAuthURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", c.AuthorityURL, c.TenantID)
}

// appScope — scope для client credentials: "<graph host>/.default".
func (c *Config) appScope() string {
	u, err := url.Parse(c.GraphURL)
	if err != nil || u.Host == "" {
		return "https://graph.microsoft.com/.default"
	}
	return fmt.Sprintf("%s://%s/.default", u.Scheme, u.Host)
}

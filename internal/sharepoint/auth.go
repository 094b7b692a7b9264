package sharepoint

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DevicePrompt показывает пользователю код device flow.
type DevicePrompt func(da *oauth2.DeviceAuthResponse)

// Client создаёт аутентифицированные сессии Graph.
type Client struct {
	cfg    *Config
	logger *slog.Logger
	base   *http.Client
	tokens TokenStore
	prompt DevicePrompt
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт базовый HTTP-клиент (для тестов и прокси).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// WithTokenStore задаёт хранилище delegated-токенов.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

// WithDevicePrompt задаёт способ показа device code.
func WithDevicePrompt(prompt DevicePrompt) Option {
	return func(c *Client) { c.prompt = prompt }
}

// NewClient создаёт Client.
func NewClient(cfg *Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		base:   &http.Client{Timeout: cfg.Timeout()},
	}

	switch cfg.TokenCache {
	case TokenCacheNone:
		c.tokens = noStore{}
	default:
		c.tokens = KeyringStore{}
	}

	c.prompt = func(da *oauth2.DeviceAuthResponse) {
		logger.Warn("sign-in required: open the verification URL and enter the code",
			"verification_uri", da.VerificationURI,
			"user_code", da.UserCode,
			"expires_at", da.Expiry,
		)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthenticateAppOnly получает токен приложения (client credentials).
func (c *Client) AuthenticateAppOnly(ctx context.Context) (*Session, error) {
	if c.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret is required for app-only auth", ErrAuthentication)
	}

	cc := &clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.tokenURL(),
		Scopes:       []string{c.cfg.appScope()},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	ts := cc.TokenSource(c.tokenContext())
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("%w: client credentials: %v", ErrAuthentication, err)
	}

	c.logger.Info("authenticated with SharePoint", "auth_type", "app", "tenant_id", c.cfg.TenantID)
	return newSession(c.cfg, ts, false, c.base, c.logger), nil
}

// AuthenticateDelegated получает токен пользователя.
//
// Сначала пробует сохранённый refresh token, затем запускает device code flow.
// Ошибка keychain не фатальна: сессия работает без кэша.
func (c *Client) AuthenticateDelegated(ctx context.Context) (*Session, error) {
	oc := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:       c.cfg.authURL(),
			TokenURL:      c.cfg.tokenURL(),
			DeviceAuthURL: c.cfg.deviceAuthURL(),
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}

	tokenCtx := c.tokenContext()
	key := c.cacheKey()

	tok := c.cachedToken(tokenCtx, oc, key)
	if tok == nil {
		var err error
		tok, err = c.deviceFlow(ctx, oc)
		if err != nil {
			return nil, err
		}
	}

	ts := oauth2.ReuseTokenSource(tok, &savingTokenSource{
		base:  oc.TokenSource(tokenCtx, tok),
		store: c.tokens,
		key:   key,
		onErr: func(err error) { c.logger.Warn("failed to cache token", "error", err) },
	})
	if err := c.tokens.Save(key, tok); err != nil {
		c.logger.Warn("failed to cache token", "error", err)
	}

	c.logger.Info("authenticated with SharePoint", "auth_type", "delegated", "tenant_id", c.cfg.TenantID)
	return newSession(c.cfg, ts, true, c.base, c.logger), nil
}

// cachedToken возвращает валидный токен из кэша (обновляя его при необходимости).
func (c *Client) cachedToken(ctx context.Context, oc *oauth2.Config, key string) *oauth2.Token {
	cached, err := c.tokens.Load(key)
	if err != nil {
		c.logger.Warn("token cache unavailable", "error", err)
		return nil
	}
	if cached == nil {
		return nil
	}
	if cached.Valid() {
		return cached
	}
	if cached.RefreshToken == "" {
		return nil
	}

	tok, err := oc.TokenSource(ctx, cached).Token()
	if err != nil {
		c.logger.Warn("cached refresh token rejected, falling back to device code", "error", err)
		return nil
	}
	c.logger.Debug("refreshed cached token")
	return tok
}

// deviceFlow выполняет device authorization grant.
func (c *Client) deviceFlow(ctx context.Context, oc *oauth2.Config) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)

	da, err := oc.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: device authorization: %v", ErrAuthentication, err)
	}

	c.prompt(da)

	tok, err := oc.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("%w: device token: %v", ErrAuthentication, err)
	}
	return tok, nil
}

// tokenContext — контекст для token source.
//
// Token source живёт дольше отдельных запросов, поэтому контекст не отменяется.
func (c *Client) tokenContext() context.Context {
	return context.WithValue(context.Background(), oauth2.HTTPClient, c.base)
}

func (c *Client) cacheKey() string {
	return c.cfg.TenantID + "/" + c.cfg.ClientID
}

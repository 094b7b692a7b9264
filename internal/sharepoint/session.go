package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// simpleUploadLimit — максимальный размер файла для загрузки одним PUT.
	simpleUploadLimit = 4 << 20
	// uploadChunkSize должен быть кратен 320 KiB.
	uploadChunkSize = 10 * 320 << 10

	defaultBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Session — аутентифицированная сессия Microsoft Graph.
//
// Безопасна для последовательного использования; кэши site/drive защищены мьютексом.
type Session struct {
	cfg       *Config
	logger    *slog.Logger
	delegated bool

	api     *http.Client // с Bearer-токеном
	plain   *http.Client // для pre-authenticated URL (downloadUrl, uploadUrl)
	limiter *rate.Limiter

	backoff     time.Duration
	uploadLimit int64
	chunkSize   int64

	mu     sync.Mutex
	sites  map[string]string
	drives map[string]string
}

func newSession(cfg *Config, ts oauth2.TokenSource, delegated bool, base *http.Client, logger *slog.Logger) *Session {
	return &Session{
		cfg:       cfg,
		logger:    logger,
		delegated: delegated,
		api: &http.Client{
			Timeout:   base.Timeout,
			Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
		},
		plain:       base,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		backoff:     defaultBackoff,
		uploadLimit: simpleUploadLimit,
		chunkSize:   uploadChunkSize,
		sites:       make(map[string]string),
		drives:      make(map[string]string),
	}
}

// Delegated возвращает true для сессии от имени пользователя.
func (s *Session) Delegated() bool {
	return s.delegated
}

// request — описание запроса к Graph.
type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	headers     map[string]string
	plain       bool
}

// getJSON выполняет GET и декодирует ответ в out.
func (s *Session) getJSON(ctx context.Context, rawURL string, out any) error {
	return s.doJSON(ctx, http.MethodGet, rawURL, nil, out)
}

// doJSON отправляет in как JSON и декодирует ответ в out (если out != nil).
func (s *Session) doJSON(ctx context.Context, method, rawURL string, in, out any) error {
	req := request{method: method, url: rawURL}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.body = data
		req.contentType = "application/json"
	}

	resp, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// do выполняет запрос с ограничением частоты и повторами на 429/503/504.
// Ответ со статусом >= 400 превращается в *APIError.
func (s *Session) do(ctx context.Context, r request) (*http.Response, error) {
	client := s.api
	if r.plain {
		client = s.plain
	}

	retries := s.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, r.method, r.url, bodyReader(r.body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		for k, v := range r.headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", r.method, redact(r.url), err)
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		if isRetryable(resp.StatusCode) && attempt < retries {
			delay := s.retryDelay(resp, attempt)
			resp.Body.Close()
			s.logger.Warn("graph request throttled, retrying",
				"method", r.method,
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// retryDelay — Retry-After в секундах, иначе экспоненциальная задержка.
func (s *Session) retryDelay(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxBackoff)
		}
		if t, err := http.ParseTime(v); err == nil {
			return min(max(time.Until(t), 0), maxBackoff)
		}
	}

	delay := time.Duration(float64(s.backoff) * math.Pow(2, float64(attempt)))
	return min(delay, maxBackoff)
}

// parseAPIError разбирает тело ошибки Graph: {"error": {"code": ..., "message": ...}}.
func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error.Code != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// redact убирает query string: pre-authenticated URL содержат токен.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

// siteID находит сайт по имени: GET /sites/{hostname}:/sites/{site}.
func (s *Session) siteID(ctx context.Context, site string) (string, error) {
	s.mu.Lock()
	id, ok := s.sites[site]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	var out struct {
		ID string `json:"id"`
	}
	u := fmt.Sprintf("%s/sites/%s:/sites/%s", s.cfg.GraphURL, s.cfg.Hostname, url.PathEscape(site))
	if err := s.getJSON(ctx, u, &out); err != nil {
		if IsNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrSiteNotFound, site)
		}
		return "", fmt.Errorf("resolve site %s: %w", site, err)
	}

	s.mu.Lock()
	s.sites[site] = out.ID
	s.mu.Unlock()
	return out.ID, nil
}

// driveID находит библиотеку документов сайта по отображаемому имени.
func (s *Session) driveID(ctx context.Context, site, library string) (string, error) {
	key := site + "\x00" + library
	s.mu.Lock()
	id, ok := s.drives[key]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	siteID, err := s.siteID(ctx, site)
	if err != nil {
		return "", err
	}

	var out struct {
		Value []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"value"`
	}
	if err := s.getJSON(ctx, fmt.Sprintf("%s/sites/%s/drives", s.cfg.GraphURL, url.PathEscape(siteID)), &out); err != nil {
		return "", fmt.Errorf("list drives of %s: %w", site, err)
	}

	for _, d := range out.Value {
		if strings.EqualFold(d.Name, library) {
			s.mu.Lock()
			s.drives[key] = d.ID
			s.mu.Unlock()
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s on site %s", ErrLibraryNotFound, library, site)
}

// itemURL строит адрес элемента по пути: /drives/{id}/root:/{path}:{suffix}.
func (s *Session) itemURL(driveID, itemPath, suffix string) string {
	base := fmt.Sprintf("%s/drives/%s/root", s.cfg.GraphURL, url.PathEscape(driveID))
	p := escapePath(itemPath)
	if p == "" {
		if suffix == "" {
			return base
		}
		return base + suffix
	}
	return base + ":/" + p + ":" + suffix
}

// escapePath экранирует каждый сегмент пути, сохраняя разделители.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	out := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, url.PathEscape(part))
	}
	return strings.Join(out, "/")
}

func joinPath(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

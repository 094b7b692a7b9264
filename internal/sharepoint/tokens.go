package sharepoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// keyringService — имя сервиса для записей в keychain.
const keyringService = "engagement-workflow"

// TokenStore хранит delegated-токены между запусками.
type TokenStore interface {
	// Load возвращает сохранённый токен или nil, если его нет.
	Load(key string) (*oauth2.Token, error)
	Save(key string, tok *oauth2.Token) error
}

// KeyringStore хранит токены в системном keychain.
//   - macOS: Keychain Access
//   - Linux: Secret Service API (GNOME Keyring, KWallet)
//   - Windows: Credential Manager
type KeyringStore struct{}

// Load реализует TokenStore.
func (KeyringStore) Load(key string) (*oauth2.Token, error) {
	raw, err := keyring.Get(keyringService, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring get: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

// Save реализует TokenStore.
func (KeyringStore) Save(key string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := keyring.Set(keyringService, key, string(raw)); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

// noStore — кэш отключён.
type noStore struct{}

func (noStore) Load(string) (*oauth2.Token, error) { return nil, nil }
func (noStore) Save(string, *oauth2.Token) error   { return nil }

// savingTokenSource сохраняет токен в store при каждом обновлении.
type savingTokenSource struct {
	base  oauth2.TokenSource
	store TokenStore
	key   string
	onErr func(error)

	mu   sync.Mutex
	last string
}

// Token реализует oauth2.TokenSource.
func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(s.key, tok); err != nil && s.onErr != nil {
			s.onErr(err)
		}
	}
	return tok, nil
}

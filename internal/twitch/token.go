package twitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

// refreshSkew refreshes tokens that expire within this window.
const refreshSkew = 60 * time.Second

var errEmptyRefreshToken = errors.New("twitch: account has no refresh token")

// TokenStore persists refreshed user tokens. The accounts repository
// implements it.
type TokenStore interface {
	UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiresAt time.Time) error
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenProvider returns currently-valid bearer credentials: an app token for
// Helix management calls and per-account user tokens for chat and clips,
// transparently refreshing either when it expires within refreshSkew.
type TokenProvider struct {
	clientID     string
	clientSecret string
	authURL      string
	http         *http.Client
	store        TokenStore
	logger       *zap.Logger

	mu           sync.Mutex
	appToken     string
	appExpiresAt time.Time
}

// NewTokenProvider creates a token provider against the given OAuth endpoint.
func NewTokenProvider(clientID, clientSecret, authURL string, store TokenStore, logger *zap.Logger) *TokenProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      authURL,
		http:         &http.Client{Timeout: 15 * time.Second},
		store:        store,
		logger:       logger,
	}
}

// AppToken returns a valid client-credentials token, fetching a new one when
// the cached token expires within refreshSkew.
func (p *TokenProvider) AppToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.appToken != "" && time.Until(p.appExpiresAt) > refreshSkew {
		return p.appToken, nil
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	tr, err := p.exchange(ctx, form)
	if err != nil {
		return "", err
	}
	p.appToken = tr.AccessToken
	p.appExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return p.appToken, nil
}

// UserToken returns a valid user access token for the account, refreshing
// and persisting a new pair when the stored token expires within
// refreshSkew. On refresh the account's token fields are updated in place.
func (p *TokenProvider) UserToken(ctx context.Context, account *models.Account) (string, error) {
	if account.AccessToken != "" && time.Until(account.TokenExpiresAt) > refreshSkew {
		return account.AccessToken, nil
	}
	refresh := strings.TrimSpace(account.RefreshToken)
	if refresh == "" {
		return "", errEmptyRefreshToken
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	tr, err := p.exchange(ctx, form)
	if err != nil {
		return "", err
	}
	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	account.AccessToken = tr.AccessToken
	account.RefreshToken = tr.RefreshToken
	account.TokenExpiresAt = expiresAt
	if p.store != nil {
		if err := p.store.UpdateTokens(ctx, account.ID, tr.AccessToken, tr.RefreshToken, expiresAt); err != nil {
			p.logger.Warn("persist refreshed tokens failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		}
	}
	return tr.AccessToken, nil
}

func (p *TokenProvider) exchange(ctx context.Context, form url.Values) (*tokenResponse, error) {
	var tr tokenResponse
	err := doWithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authURL, strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("create token request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := p.http.Do(req)
		if err != nil {
			return fmt.Errorf("token request: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read token response: %w", err)
		}
		if resp.StatusCode/100 != 2 {
			return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		if err := json.Unmarshal(body, &tr); err != nil {
			return fmt.Errorf("decode token response: %w", err)
		}
		if tr.AccessToken == "" {
			return errors.New("twitch: token response has empty access token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type HandleResult string

const (
	HandleFound    HandleResult = "found"
	HandleNotFound HandleResult = "not_found"
)

// SocialChecker resolves a social-network handle. Only existence is checked:
// the follow relationship is not verified.
type SocialChecker interface {
	Configured() bool
	ResolveHandle(ctx context.Context, handle string) (HandleResult, error)
}

type disabledSocialChecker struct{}

// NewDisabledSocialChecker is used when no X credentials are configured.
func NewDisabledSocialChecker() SocialChecker { return disabledSocialChecker{} }

func (disabledSocialChecker) Configured() bool { return false }

func (disabledSocialChecker) ResolveHandle(context.Context, string) (HandleResult, error) {
	return "", ErrSocialUnavailable
}

// X: 1..15 символов, латиница, цифры и подчёркивание.
var twitterHandleRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// NormalizeHandle trims whitespace and a leading "@".
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	return strings.TrimSpace(h)
}

type TwitterClientConfig struct {
	BaseURL     string
	BearerToken string
	APIKey      string
	APISecret   string
	Timeout     time.Duration
}

type twitterChecker struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewTwitterChecker: клиент X API v2 (app-only). Статический bearer имеет
// приоритет; иначе токен получаем по key/secret через client credentials.
func NewTwitterChecker(cfg TwitterClientConfig, log *zap.Logger) SocialChecker {
	if log == nil {
		log = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.twitter.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})

	var client *http.Client
	if cfg.BearerToken != "" {
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.BearerToken,
			TokenType:   "Bearer",
		}))
	} else {
		cc := clientcredentials.Config{
			ClientID:     cfg.APIKey,
			ClientSecret: cfg.APISecret,
			TokenURL:     base + "/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		client = cc.Client(ctx)
	}
	client.Timeout = timeout

	return &twitterChecker{baseURL: base, client: client, log: log}
}

func (c *twitterChecker) Configured() bool { return true }

type twitterUserResponse struct {
	Data *struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Type   string `json:"type"`
	} `json:"errors"`
}

func (c *twitterChecker) ResolveHandle(ctx context.Context, handle string) (HandleResult, error) {
	handle = NormalizeHandle(handle)
	if !twitterHandleRe.MatchString(handle) {
		return HandleNotFound, nil
	}

	endpoint := c.baseURL + "/2/users/by/username/" + url.PathEscape(handle)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("twitter request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("twitter lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("twitter read: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return HandleNotFound, nil
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("twitter lookup failed", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return "", fmt.Errorf("twitter lookup: status %d", resp.StatusCode)
	}

	var parsed twitterUserResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("twitter decode: %w", err)
	}
	if parsed.Data != nil && parsed.Data.ID != "" {
		return HandleFound, nil
	}
	// 200 + errors[], так X отвечает на несуществующий или заблокированный аккаунт.
	if len(parsed.Errors) > 0 {
		return HandleNotFound, nil
	}
	return "", fmt.Errorf("twitter lookup: empty response")
}

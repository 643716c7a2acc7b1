package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"PartyQ/logger"
)

var (
	// ErrNotConnected 主持人账号尚未完成授权
	ErrNotConnected = fmt.Errorf("host account not connected")
)

// tokenStore holds the host account's OAuth tokens, mirrored to a flat
// file so a restart keeps the party going. File writes are best-effort.
type tokenStore struct {
	mu           sync.Mutex
	path         string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

type tokenRecord struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (t *tokenStore) load() {
	if t.path == "" {
		return
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("读取令牌文件失败", logger.String("path", t.path), logger.ErrorField(err))
		}
		return
	}
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warn("解析令牌文件失败", logger.String("path", t.path), logger.ErrorField(err))
		return
	}
	t.mu.Lock()
	t.accessToken = rec.AccessToken
	t.refreshToken = rec.RefreshToken
	t.expiresAt = rec.ExpiresAt
	t.mu.Unlock()
	if rec.RefreshToken != "" {
		logger.Info("主持人授权状态已恢复", logger.String("path", t.path))
	}
}

// save 持锁调用
func (t *tokenStore) save() {
	if t.path == "" {
		return
	}
	rec := tokenRecord{
		AccessToken:  t.accessToken,
		RefreshToken: t.refreshToken,
		ExpiresAt:    t.expiresAt,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		logger.Error("序列化令牌失败", logger.ErrorField(err))
		return
	}
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("创建令牌目录失败", logger.String("dir", dir), logger.ErrorField(err))
			return
		}
	}
	if err := os.WriteFile(t.path, data, 0o600); err != nil {
		logger.Warn("写入令牌文件失败", logger.String("path", t.path), logger.ErrorField(err))
	}
}

// Connected reports whether the host account has completed authorization.
func (c *Client) Connected() bool {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	return c.tokens.refreshToken != ""
}

// Disconnect drops the host authorization and the persisted tokens.
func (c *Client) Disconnect() {
	c.tokens.mu.Lock()
	c.tokens.accessToken = ""
	c.tokens.refreshToken = ""
	c.tokens.expiresAt = time.Time{}
	c.tokens.save()
	c.tokens.mu.Unlock()
	logger.Info("主持人账号已断开")
}

// AuthorizeURL builds the authorization redirect for the host to approve
// the requested playback scopes. state guards the callback.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.redirectURI)
	q.Set("state", state)
	q.Set("scope", strings.Join([]string{
		"user-read-playback-state",
		"user-modify-playback-state",
		"user-read-currently-playing",
		"user-read-recently-played",
		"playlist-read-private",
		"playlist-read-collaborative",
	}, " "))
	return c.accountURL + "/authorize?" + q.Encode()
}

// Exchange trades the callback code for access and refresh tokens.
func (c *Client) Exchange(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	return c.requestTokens(ctx, form)
}

// accessToken returns a usable token, refreshing when it is about to
// expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	token := c.tokens.accessToken
	fresh := token != "" && time.Until(c.tokens.expiresAt) > time.Minute
	connected := c.tokens.refreshToken != ""
	c.tokens.mu.Unlock()

	if fresh {
		return token, nil
	}
	if !connected {
		return "", ErrNotConnected
	}
	return c.refreshAccessToken(ctx)
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	refresh := c.tokens.refreshToken
	c.tokens.mu.Unlock()
	if refresh == "" {
		return "", ErrNotConnected
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	if err := c.requestTokens(ctx, form); err != nil {
		return "", err
	}

	c.tokens.mu.Lock()
	token := c.tokens.accessToken
	c.tokens.mu.Unlock()
	return token, nil
}

// requestTokens posts to the account token endpoint and stores the
// response. The refresh token is optional in refresh responses; the
// previous one is kept when absent.
func (c *Client) requestTokens(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.accountURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("创建令牌请求失败: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("令牌请求失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取令牌响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: apiErrorMessage(data)}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("解析令牌响应失败: %w", err)
	}

	c.tokens.mu.Lock()
	c.tokens.accessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		c.tokens.refreshToken = payload.RefreshToken
	}
	c.tokens.expiresAt = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	c.tokens.save()
	c.tokens.mu.Unlock()
	return nil
}

// StartAutoRefresh keeps the access token warm so the first playback
// command after a quiet stretch does not pay the refresh round-trip.
func (c *Client) StartAutoRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.Connected() {
					continue
				}
				if _, err := c.accessToken(ctx); err != nil && err != ErrNotConnected {
					logger.Warn("刷新访问令牌失败", logger.ErrorField(err))
				}
			}
		}
	}()
}

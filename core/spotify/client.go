package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"PartyQ/config"
)

const (
	apiBaseURL     = "https://api.spotify.com/v1"
	accountBaseURL = "https://accounts.spotify.com"
)

// APIError 远端播放服务返回的非2xx响应
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify api error %d: %s", e.Status, e.Message)
}

// Client talks to the remote playback service on behalf of the connected
// host account. Token state lives on the client and is persisted
// best-effort so a restart does not force the host to reconnect.
type Client struct {
	baseURL      string
	accountURL   string
	clientID     string
	clientSecret string
	redirectURI  string
	httpClient   *http.Client

	tokens tokenStore
}

// NewClient 创建播放服务客户端并从令牌文件恢复授权状态
func NewClient(cfg *config.Config) *Client {
	c := &Client{
		baseURL:      apiBaseURL,
		accountURL:   accountBaseURL,
		clientID:     cfg.SpotifyClientID,
		clientSecret: cfg.SpotifyClientSecret,
		redirectURI:  cfg.SpotifyRedirectURI,
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
	}
	c.tokens.path = cfg.TokenStore
	c.tokens.load()
	return c
}

// SetBaseURL 设置API基础URL（测试用）
func (c *Client) SetBaseURL(api, account string) {
	c.baseURL = api
	c.accountURL = account
}

// do issues an authorized API request. A 401 triggers one refresh attempt
// before the request is retried; any remaining non-2xx becomes *APIError.
// The returned body is nil for 204 responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.doOnce(ctx, method, path, query, body, token)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusUnauthorized {
		if token, err = c.refreshAccessToken(ctx); err != nil {
			return nil, err
		}
		data, err = c.doOnce(ctx, method, path, query, body, token)
	}
	return data, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body interface{}, token string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: apiErrorMessage(data)}
	}
	return data, nil
}

// apiErrorMessage digs the human-readable reason out of an error body.
func apiErrorMessage(data []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	if len(data) > 0 {
		return string(data)
	}
	return "unknown error"
}

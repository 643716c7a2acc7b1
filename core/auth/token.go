package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookieName 会话Cookie名称
const SessionCookieName = "partyq_session"

// sessionClaims carries only the opaque session id; role and name live in
// the registry so a stolen cookie cannot claim a higher role by itself.
type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// CookieCodec signs and verifies the session cookie.
type CookieCodec struct {
	secret []byte
}

// NewCookieCodec 创建会话Cookie编解码器
func NewCookieCodec(secret string) *CookieCodec {
	return &CookieCodec{secret: []byte(secret)}
}

// Sign issues a signed token for the session id.
func (c *CookieCodec) Sign(sessionID string) (string, error) {
	claims := sessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token and returns the session id, or an error
// when the signature does not check out.
func (c *CookieCodec) Verify(tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	if !token.Valid || claims.SessionID == "" {
		return "", fmt.Errorf("invalid session token")
	}
	return claims.SessionID, nil
}

// SessionIDFromRequest extracts the session id from the request cookie.
// Returns an empty string when there is no usable cookie.
func (c *CookieCodec) SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	sessionID, err := c.Verify(cookie.Value)
	if err != nil {
		return ""
	}
	return sessionID
}

// SetSessionCookie writes the signed session cookie on the response.
func (c *CookieCodec) SetSessionCookie(w http.ResponseWriter, sessionID string) error {
	signed, err := c.Sign(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type LoginTokenClaims struct {
	TokenID   string `json:"token_id"`
	UserID    uint   `json:"user_id"`
	ExpiresAt int64  `json:"exp"`
}

// GenerateLoginToken signs magic-link claims with HMAC-SHA256. The token id
// must also be stored server-side so links are single-use.
func GenerateLoginToken(tokenID string, userID uint, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for token generation")
	}
	if tokenID == "" {
		return "", errors.New("token id is required")
	}
	claims := LoginTokenClaims{
		TokenID:   tokenID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := mac.Sum(nil)
	token := fmt.Sprintf("%s.%s", base64.RawURLEncoding.EncodeToString(payload), base64.RawURLEncoding.EncodeToString(sig))
	return token, nil
}

// VerifyLoginToken checks signature and expiry and returns the claims.
func VerifyLoginToken(token, secret string) (*LoginTokenClaims, error) {
	if secret == "" {
		return nil, errors.New("secret is required for token verification")
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, errors.New("invalid token format")
	}
	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errors.New("invalid payload encoding")
	}
	sigBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errors.New("invalid signature encoding")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payloadBytes)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, sigBytes) {
		return nil, errors.New("invalid token signature")
	}

	var claims LoginTokenClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, errors.New("invalid token payload")
	}
	if claims.TokenID == "" || claims.UserID == 0 {
		return nil, errors.New("token is missing required claims")
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, errors.New("token is expired")
	}
	return &claims, nil
}

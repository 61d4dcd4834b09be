package security

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func TestLoginTokenRoundtrip(t *testing.T) {
	token, err := GenerateLoginToken("tok-123", 7, 15*time.Minute, testSecret)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := VerifyLoginToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", claims.TokenID)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestGenerateLoginTokenRequiresSecretAndTokenID(t *testing.T) {
	_, err := GenerateLoginToken("tok-123", 7, time.Minute, "")
	assert.Error(t, err)

	_, err = GenerateLoginToken("", 7, time.Minute, testSecret)
	assert.Error(t, err)
}

func TestVerifyLoginTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateLoginToken("tok-123", 7, time.Minute, testSecret)
	require.NoError(t, err)

	_, err = VerifyLoginToken(token, "other-secret")
	assert.Error(t, err)
}

func TestVerifyLoginTokenRejectsTamperedPayload(t *testing.T) {
	token, err := GenerateLoginToken("tok-123", 7, time.Minute, testSecret)
	require.NoError(t, err)

	parts := strings.SplitN(token, ".", 2)
	require.Len(t, parts, 2)

	other, err := GenerateLoginToken("tok-456", 9, time.Minute, testSecret)
	require.NoError(t, err)
	otherParts := strings.SplitN(other, ".", 2)

	// Payload from one token with the signature of another.
	_, err = VerifyLoginToken(otherParts[0]+"."+parts[1], testSecret)
	assert.Error(t, err)
}

func TestVerifyLoginTokenRejectsExpired(t *testing.T) {
	token, err := GenerateLoginToken("tok-123", 7, -time.Minute, testSecret)
	require.NoError(t, err)

	_, err = VerifyLoginToken(token, testSecret)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestVerifyLoginTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "nodot", "a.b", "!!!.???"} {
		_, err := VerifyLoginToken(token, testSecret)
		assert.Error(t, err, "token %q", token)
	}
}

package admission_test

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/moltchats/gateway/internal/admission"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_ValidTokenRoundTrips(t *testing.T) {
	v := admission.NewJWTVerifier("s3cret")
	token := signToken(t, "s3cret", jwt.MapClaims{
		"tid": "tok-1", "agentId": "agent-1", "username": "scout", "role": "agent",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(token)
	require.Nil(t, err)
	require.Equal(t, "tok-1", claims.TokenID)
	require.Equal(t, "agent-1", claims.AgentID)
}

func TestJWTVerifier_ExpiredTokenReturnsTokenExpired(t *testing.T) {
	v := admission.NewJWTVerifier("s3cret")
	token := signToken(t, "s3cret", jwt.MapClaims{
		"tid": "tok-1", "agentId": "agent-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	require.NotNil(t, err)
	require.Equal(t, admission.CodeTokenExpired, err.Code)
}

func TestJWTVerifier_WrongSecretRejected(t *testing.T) {
	v := admission.NewJWTVerifier("correct-secret")
	token := signToken(t, "wrong-secret", jwt.MapClaims{
		"tid": "tok-1", "agentId": "agent-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	require.NotNil(t, err)
	require.Equal(t, admission.CodeInvalidCredentials, err.Code)
}

func TestJWTVerifier_MissingRequiredClaimsRejected(t *testing.T) {
	v := admission.NewJWTVerifier("s3cret")
	token := signToken(t, "s3cret", jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(token)
	require.NotNil(t, err)
	require.Equal(t, admission.CodeInvalidCredentials, err.Code)
}

func TestExtractToken_PrefersQueryParameterOverHeader(t *testing.T) {
	r := &http.Request{
		URL:    &url.URL{RawQuery: "token=from-query"},
		Header: http.Header{"Authorization": []string{"Bearer from-header"}},
	}
	token, err := admission.ExtractToken(r)
	require.NoError(t, err)
	require.Equal(t, "from-query", token)
}

func TestExtractToken_FallsBackToAuthorizationHeader(t *testing.T) {
	r := &http.Request{
		URL:    &url.URL{},
		Header: http.Header{"Authorization": []string{"Bearer from-header"}},
	}
	token, err := admission.ExtractToken(r)
	require.NoError(t, err)
	require.Equal(t, "from-header", token)
}

func TestExtractToken_NeitherPresentReturnsError(t *testing.T) {
	r := &http.Request{URL: &url.URL{}, Header: http.Header{}}
	_, err := admission.ExtractToken(r)
	require.Error(t, err)
}

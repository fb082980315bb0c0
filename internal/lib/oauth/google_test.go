package oauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/magabrotheeeer/glassworks-auth/internal/models"
)

const (
	testClientID = "client-123.apps.googleusercontent.com"
	testKeyID    = "test-key"
)

// roundTripFunc подменяет загрузку сертификатов Google.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func certsTransport(t *testing.T, key *rsa.PublicKey) http.RoundTripper {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"keys": []map[string]string{{
			"kid": testKeyID,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	})
	require.NoError(t, err)
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(string(body))),
			Request:    r,
		}, nil
	})
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func googleClaims(mutate func(jwtlib.MapClaims)) jwtlib.MapClaims {
	c := jwtlib.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            testClientID,
		"sub":            "sub-1",
		"email":          "a@example.com",
		"email_verified": true,
		"name":           "Anna",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestGoogleVerifier_Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v, err := NewGoogleVerifier(context.Background(), testClientID,
		option.WithHTTPClient(&http.Client{Transport: certsTransport(t, &key.PublicKey)}))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: signToken(t, key, googleClaims(nil))},
		{
			name:  "email_verified as string",
			token: signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { c["email_verified"] = "true" })),
		},
		{name: "empty token", token: "", wantErr: true},
		{name: "garbage", token: "not-a-jwt", wantErr: true},
		{name: "foreign signature", token: signToken(t, otherKey, googleClaims(nil)), wantErr: true},
		{
			name:    "foreign audience",
			token:   signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { c["aud"] = "someone-else" })),
			wantErr: true,
		},
		{
			name:    "foreign issuer",
			token:   signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { c["iss"] = "https://evil.example" })),
			wantErr: true,
		},
		{
			name:    "email not verified",
			token:   signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { c["email_verified"] = false })),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() })),
			wantErr: true,
		},
		{
			name:    "missing email",
			token:   signToken(t, key, googleClaims(func(c jwtlib.MapClaims) { delete(c, "email") })),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidToken)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &Identity{
				Provider: models.ProviderGoogle,
				Subject:  "sub-1",
				Email:    "a@example.com",
				Name:     "Anna",
			}, id)
		})
	}
}

func TestGoogleVerifier_CertsUnavailable(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	failing := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	v, err := NewGoogleVerifier(context.Background(), testClientID,
		option.WithHTTPClient(&http.Client{Transport: failing}))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), signToken(t, key, googleClaims(nil)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "viewsync-test-secret-0123456789ab"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestSharedSecretValidator_Validate(t *testing.T) {
	t.Parallel()

	future := time.Now().Add(time.Hour).Unix()

	t.Run("scheduler_identity", func(t *testing.T) {
		t.Parallel()
		tok := signHS256(t, testSecret, jwt.MapClaims{
			"sub":   "scheduler@proj.iam.gserviceaccount.com",
			"iss":   "https://accounts.google.com",
			"email": "scheduler@proj.iam.gserviceaccount.com",
			"aud":   "https://viewsync.example.run.app/main",
			"exp":   future,
		})

		claims, err := NewSharedSecretValidator(testSecret).Validate(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, "scheduler@proj.iam.gserviceaccount.com", claims.Subject)
		assert.Equal(t, "https://accounts.google.com", claims.Issuer)
		require.NotNil(t, claims.Email)
		assert.Equal(t, "scheduler@proj.iam.gserviceaccount.com", *claims.Email)
		assert.Nil(t, claims.Name)
		assert.Equal(t, []string{"https://viewsync.example.run.app/main"}, claims.Audience)
		assert.NotNil(t, claims.Raw)
	})

	t.Run("subject_only", func(t *testing.T) {
		t.Parallel()
		tok := signHS256(t, testSecret, jwt.MapClaims{"sub": "ci-deploy", "exp": future})

		claims, err := NewSharedSecretValidator(testSecret).Validate(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, "ci-deploy", claims.Subject)
		assert.Empty(t, claims.Issuer)
		assert.Nil(t, claims.Email)
		assert.Nil(t, claims.Audience)
	})

	rsaToken := func() string {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "x", "exp": future}).SignedString(key)
		require.NoError(t, err)
		return signed
	}()

	rejected := []struct {
		name  string
		token string
	}{
		{"expired", signHS256(t, testSecret, jwt.MapClaims{"sub": "late", "exp": time.Now().Add(-time.Minute).Unix()})},
		{"other_secret", signHS256(t, "someone-elses-secret", jwt.MapClaims{"sub": "x", "exp": future})},
		{"rs256", rsaToken},
		{"malformed", "a.b.c.d"},
		{"empty", ""},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			claims, err := NewSharedSecretValidator(testSecret).Validate(context.Background(), tc.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "jwt parse:")
			assert.Nil(t, claims)
		})
	}
}

func TestNewOIDCValidatorFromJWKS_Issuers(t *testing.T) {
	t.Parallel()

	const jwks = "https://www.googleapis.com/oauth2/v3/certs"

	tests := []struct {
		name    string
		issuer  string
		allowed []string
		want    map[string]bool
	}{
		{
			name:   "defaults_to_issuer",
			issuer: "https://accounts.google.com",
			want:   map[string]bool{"https://accounts.google.com": true},
		},
		{
			name:    "explicit_allowlist",
			issuer:  "https://accounts.google.com",
			allowed: []string{"accounts.google.com", "https://accounts.google.com"},
			want: map[string]bool{
				"accounts.google.com":         true,
				"https://accounts.google.com": true,
			},
		},
		{
			name: "no_issuer",
			want: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v, err := NewOIDCValidatorFromJWKS(context.Background(), jwks, tt.issuer, "viewsync", tt.allowed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.allowedIssuers)
			assert.NotNil(t, v.verifier)
		})
	}
}

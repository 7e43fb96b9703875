// Package middleware provides the HTTP middleware in front of the sync
// trigger: request IDs, per-client rate limiting, and bearer-token
// authentication.
package middleware

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims holds the parsed claims from a validated JWT.
type JWTClaims struct {
	Subject  string
	Issuer   string
	Audience []string
	Email    *string
	Name     *string
	Raw      map[string]interface{}
}

// JWTValidator validates a JWT token and returns the parsed claims.
type JWTValidator interface {
	Validate(ctx context.Context, tokenString string) (*JWTClaims, error)
}

// OIDCValidator validates JWTs using OIDC discovery and JWKS. On Cloud Run
// this verifies Google-signed identity tokens from Cloud Scheduler or
// Pub/Sub push.
type OIDCValidator struct {
	verifier       *oidc.IDTokenVerifier
	allowedIssuers map[string]bool
}

// SharedSecretValidator validates JWTs signed with a shared HS256 secret.
type SharedSecretValidator struct {
	secret []byte
}

// NewOIDCValidator creates a validator from an OIDC issuer URL.
func NewOIDCValidator(ctx context.Context, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider discovery: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: audience})
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuerSet(issuerURL, allowedIssuers)}, nil
}

// NewOIDCValidatorFromJWKS creates a validator from a JWKS URL (no OIDC discovery).
func NewOIDCValidatorFromJWKS(ctx context.Context, jwksURL, issuerURL, audience string, allowedIssuers []string) (*OIDCValidator, error) {
	keySet := oidc.NewRemoteKeySet(ctx, jwksURL)
	verifier := oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: audience})
	return &OIDCValidator{verifier: verifier, allowedIssuers: issuerSet(issuerURL, allowedIssuers)}, nil
}

func issuerSet(issuerURL string, allowed []string) map[string]bool {
	issuers := make(map[string]bool, len(allowed)+1)
	for _, iss := range allowed {
		issuers[iss] = true
	}
	if len(issuers) == 0 && issuerURL != "" {
		issuers[issuerURL] = true
	}
	return issuers
}

// NewSharedSecretValidator creates a validator for local/dev HS256 tokens.
func NewSharedSecretValidator(secret string) *SharedSecretValidator {
	return &SharedSecretValidator{secret: []byte(secret)}
}

// Validate verifies the JWT using the OIDC provider's JWKS.
func (v *OIDCValidator) Validate(ctx context.Context, tokenString string) (*JWTClaims, error) {
	idToken, err := v.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	if len(v.allowedIssuers) > 0 && !v.allowedIssuers[idToken.Issuer] {
		return nil, fmt.Errorf("issuer %q not in allowed list", idToken.Issuer)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}

	claims := &JWTClaims{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: idToken.Audience,
		Raw:      raw,
	}
	claims.Email, claims.Name = stringClaim(raw, "email"), stringClaim(raw, "name")
	return claims, nil
}

// Validate verifies a JWT signed with HS256 and extracts claims.
func (v *SharedSecretValidator) Validate(_ context.Context, tokenString string) (*JWTClaims, error) {
	tok, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("jwt parse: %w", err)
	}

	raw, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("jwt parse: unsupported claim type %T", tok.Claims)
	}

	claims := &JWTClaims{Raw: map[string]interface{}(raw)}
	claims.Subject, _ = raw.GetSubject()
	claims.Issuer, _ = raw.GetIssuer()
	if aud, err := raw.GetAudience(); err == nil && len(aud) > 0 {
		claims.Audience = []string(aud)
	}
	claims.Email, claims.Name = stringClaim(raw, "email"), stringClaim(raw, "name")
	return claims, nil
}

func stringClaim(raw map[string]interface{}, key string) *string {
	if s, ok := raw[key].(string); ok {
		return &s
	}
	return nil
}

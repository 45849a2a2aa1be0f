package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims are the fields the API reads from a verified access token.
type Claims struct {
	Sub   string
	Email string
	Name  string
	Role  string
	Iss   string
	Exp   int64
	// JSON is the full claim set, handed to Postgres as request.jwt.claims.
	JSON []byte
}

// KeySource resolves a JWKS URL to a key set.
type KeySource interface {
	GetJWKS(ctx context.Context, jwksURL string) (jwk.Set, error)
}

// Verifier verifies access tokens against a JWKS endpoint.
type Verifier struct {
	keys    KeySource
	issuer  string
	jwksURL string
}

// NewVerifier creates a verifier. An empty issuer skips the issuer check.
func NewVerifier(keys KeySource, issuer, jwksURL string) *Verifier {
	return &Verifier{keys: keys, issuer: issuer, jwksURL: jwksURL}
}

// Verify checks the token signature, expiry and issuer and extracts its claims.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if v.jwksURL == "" {
		return nil, fmt.Errorf("JWKS URL not configured")
	}
	keys, err := v.keys.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keys), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}
	if token.Subject() == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}

	claims := &Claims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
	}
	if !token.Expiration().IsZero() {
		claims.Exp = token.Expiration().Unix()
	}
	private := token.PrivateClaims()
	claims.Email = stringClaim(private, "email")
	claims.Name = stringClaim(private, "name")
	claims.Role = stringClaim(private, "role")

	all, err := token.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read token claims: %w", err)
	}
	if claims.JSON, err = json.Marshal(all); err != nil {
		return nil, fmt.Errorf("failed to encode token claims: %w", err)
	}
	return claims, nil
}

func stringClaim(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

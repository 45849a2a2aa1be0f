package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/inkwell/inkwell-api/internal/models"
)

// ErrNoCredentials is returned when the request carries neither a bearer token nor a session cookie.
var ErrNoCredentials = errors.New("no session credentials")

// TokenVerifier verifies an access token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// SessionProfileLookup reads a profile with the caller's own privileges.
type SessionProfileLookup interface {
	GetByIDAs(ctx context.Context, claimsJSON []byte, userID string) (*models.Profile, error)
}

// TokenFromRequest returns the bearer token from the Authorization header, falling back to
// the named cookie.
func TokenFromRequest(r *http.Request, cookieName string) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", fmt.Errorf("invalid Authorization header format")
		}
		return strings.TrimSpace(token), nil
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", ErrNoCredentials
}

// SessionResolver turns request credentials into users and per-request session clients.
type SessionResolver struct {
	verifier   TokenVerifier
	profiles   SessionProfileLookup
	cookieName string
}

// NewSessionResolver creates a resolver. profiles may be nil, in which case session-scoped
// role lookups report no row.
func NewSessionResolver(verifier TokenVerifier, profiles SessionProfileLookup, cookieName string) *SessionResolver {
	return &SessionResolver{verifier: verifier, profiles: profiles, cookieName: cookieName}
}

// Resolve verifies the request's credentials and returns the user.
func (s *SessionResolver) Resolve(ctx context.Context, r *http.Request) (*models.User, error) {
	return s.Session(r).CurrentUser(ctx)
}

// Session returns a client bound to the credentials of r. Verification is deferred until first use.
func (s *SessionResolver) Session(r *http.Request) *Session {
	token, err := TokenFromRequest(r, s.cookieName)
	return &Session{resolver: s, token: token, tokenErr: err}
}

// Session is a per-request client acting with the caller's privileges.
type Session struct {
	resolver *SessionResolver
	token    string
	tokenErr error

	once   sync.Once
	claims *Claims
	err    error
}

func (s *Session) verify(ctx context.Context) (*Claims, error) {
	s.once.Do(func() {
		if s.tokenErr != nil {
			s.err = s.tokenErr
			return
		}
		s.claims, s.err = s.resolver.verifier.Verify(ctx, s.token)
	})
	return s.claims, s.err
}

// CurrentUser returns the user the token was issued to.
func (s *Session) CurrentUser(ctx context.Context) (*models.User, error) {
	claims, err := s.verify(ctx)
	if err != nil {
		return nil, err
	}
	user := &models.User{ID: claims.Sub, Email: claims.Email, Name: claims.Name}
	if claims.Exp > 0 {
		exp := time.Unix(claims.Exp, 0).UTC()
		user.ExpiresAt = &exp
	}
	return user, nil
}

// LookupRole reads userID's profile through row-level security as this session.
func (s *Session) LookupRole(ctx context.Context, userID string) (*models.Profile, error) {
	claims, err := s.verify(ctx)
	if err != nil {
		return nil, err
	}
	if s.resolver.profiles == nil {
		return nil, nil
	}
	return s.resolver.profiles.GetByIDAs(ctx, claims.JSON, userID)
}

// Package admin answers whether the caller of a request is an authenticated administrator.
package admin

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	logpkg "github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/models"
)

// RoleLookup reads a user's profile. A nil profile with a nil error means no row was visible.
type RoleLookup interface {
	LookupRole(ctx context.Context, userID string) (*models.Profile, error)
}

// SessionClient acts with the privileges of the request's session.
type SessionClient interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	RoleLookup
}

// Deps are the backend factories the gate uses. NewServiceClient returning nil, nil means no
// elevated credential is configured.
type Deps struct {
	NewSessionClient func(r *http.Request) (SessionClient, error)
	NewServiceClient func() (RoleLookup, error)
}

// DefaultDeps are the production factories, registered at startup.
var DefaultDeps Deps

// Outcome is the verdict of an admin check.
type Outcome int

const (
	Unauthorized Outcome = iota
	Forbidden
	OK
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthorized"
	}
}

// Result is the outcome of EnsureAdmin along with whatever was resolved on the way.
type Result struct {
	Outcome Outcome
	User    *models.User
	Profile *models.Profile
	Err     error
}

// Status maps the outcome to an HTTP status.
func (r Result) Status() int {
	switch r.Outcome {
	case OK:
		return http.StatusOK
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Code is the machine-readable error code for a failed check.
func (r Result) Code() string {
	switch r.Outcome {
	case OK:
		return ""
	case Forbidden:
		return "FORBIDDEN"
	default:
		return "UNAUTHORIZED"
	}
}

// Gate performs admin checks.
type Gate struct {
	deps Deps
	log  *zap.Logger
}

// NewGate creates a gate. Factories missing from deps fall back to DefaultDeps.
func NewGate(deps Deps, log *zap.Logger) *Gate {
	if deps.NewSessionClient == nil {
		deps.NewSessionClient = DefaultDeps.NewSessionClient
	}
	if deps.NewServiceClient == nil {
		deps.NewServiceClient = DefaultDeps.NewServiceClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{deps: deps, log: log}
}

// EnsureAdmin resolves the caller and confirms the admin role. It never returns OK on error.
func (g *Gate) EnsureAdmin(r *http.Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			g.log.Error("admin_check_panic", zap.Any("panic", p), zap.String("path", logpkg.SanitizePath(r.URL.Path)))
			res = Result{Outcome: Unauthorized, User: res.User, Err: fmt.Errorf("admin check panicked: %v", p)}
			if res.User != nil {
				res.Outcome = Forbidden
			}
		}
	}()

	ctx := r.Context()

	if g.deps.NewSessionClient == nil {
		return Result{Outcome: Unauthorized, Err: fmt.Errorf("no session client configured")}
	}
	session, err := g.deps.NewSessionClient(r)
	if err != nil {
		return Result{Outcome: Unauthorized, Err: fmt.Errorf("failed to create session client: %w", err)}
	}
	user, err := session.CurrentUser(ctx)
	if err != nil {
		return Result{Outcome: Unauthorized, Err: err}
	}
	if user == nil || user.ID == "" {
		return Result{Outcome: Unauthorized}
	}
	res.User = user

	profile, err := session.LookupRole(ctx, user.ID)
	if err != nil {
		// RLS denials surface as errors on some deployments; treat like an empty result.
		g.log.Debug("admin_session_lookup_failed", zap.String("user_id", user.ID), zap.Error(err))
		profile = nil
	}

	if profile == nil {
		profile, err = g.elevatedLookup(ctx, user.ID)
		if err != nil {
			g.log.Warn("admin_elevated_lookup_failed", zap.String("user_id", user.ID), zap.Error(err))
			return Result{Outcome: Forbidden, User: user, Err: err}
		}
		if profile == nil {
			return Result{Outcome: Forbidden, User: user}
		}
	}

	if !profile.IsAdmin() {
		return Result{Outcome: Forbidden, User: user, Profile: profile}
	}
	return Result{Outcome: OK, User: user, Profile: profile}
}

func (g *Gate) elevatedLookup(ctx context.Context, userID string) (*models.Profile, error) {
	if g.deps.NewServiceClient == nil {
		return nil, nil
	}
	service, err := g.deps.NewServiceClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create service client: %w", err)
	}
	if service == nil {
		return nil, nil
	}
	return service.LookupRole(ctx, userID)
}

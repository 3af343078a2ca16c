package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

const adminGroup = "admin"

// cacheTTL bounds how long a verified credential skips the full check
const cacheTTL = time.Minute

// Credentials checks logins and bearer tokens
type Credentials interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	PrincipalFor(user *models.User) models.Principal
	ParseToken(token string) (*models.Principal, error)
}

var _ Credentials = (*services.AuthService)(nil)

// Authenticator wraps two go-guardian authenticators, basic for the token
// endpoint and bearer for everything else
type Authenticator struct {
	creds  Credentials
	login  auth.Authenticator
	tokens auth.Authenticator
}

// NewAuthenticator sets up the go-guardian strategies around creds
func NewAuthenticator(ctx context.Context, creds Credentials) *Authenticator {
	a := &Authenticator{creds: creds, login: auth.New(), tokens: auth.New()}

	a.login.EnableStrategy(basic.StrategyKey, basic.New(a.validateUser, store.NewFIFO(ctx, cacheTTL)))
	a.tokens.EnableStrategy(bearer.CachedStrategyKey, bearer.New(a.validateToken, store.NewFIFO(ctx, cacheTTL)))
	return a
}

func (a *Authenticator) validateUser(ctx context.Context, _ *http.Request, email, password string) (auth.Info, error) {
	user, err := a.creds.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return infoFor(a.creds.PrincipalFor(user)), nil
}

func (a *Authenticator) validateToken(_ context.Context, _ *http.Request, token string) (auth.Info, error) {
	p, err := a.creds.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return infoFor(*p), nil
}

func infoFor(p models.Principal) auth.Info {
	groups := []string{string(p.Role)}
	if p.IsAdmin {
		groups = append(groups, adminGroup)
	}
	return auth.NewDefaultUser(p.Email, p.UserID.Hex(), groups, nil)
}

func principalFrom(info auth.Info) (models.Principal, error) {
	id, err := primitive.ObjectIDFromHex(info.ID())
	if err != nil {
		return models.Principal{}, errors.New("malformed principal id")
	}
	p := models.Principal{UserID: id, Email: info.UserName()}
	for i, g := range info.Groups() {
		if i == 0 {
			p.Role = models.UserRole(g)
			continue
		}
		if g == adminGroup {
			p.IsAdmin = true
		}
	}
	return p, nil
}

// Login checks HTTP basic credentials
func (a *Authenticator) Login(r *http.Request) (*models.Principal, error) {
	info, err := a.login.Authenticate(r)
	if err != nil {
		return nil, err
	}
	p, err := principalFrom(info)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Middleware requires a valid bearer token and puts the caller on the context
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := a.tokens.Authenticate(r)
		if err == nil {
			var p models.Principal
			if p, err = principalFrom(info); err == nil {
				zap.S().Debugw("user authenticated", "user", p.UserID.Hex(), "role", p.Role)
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}
		}
		zap.S().Warnw("unauthorized", "url", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "unauthorized"}`))
	})
}

type principalKey struct{}

// WithPrincipal stores the authenticated caller on ctx
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}

func guard(allowed func(models.Principal) bool, reason string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok || !allowed(p) {
				config.ErrorStatus("forbidden", http.StatusForbidden, w, errors.New(reason))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireOfficial lets only municipal officials through
var RequireOfficial = guard(models.Principal.IsOfficial, "official role required")

// RequireAdmin lets only admin officials through
var RequireAdmin = guard(models.Principal.IsAdminOfficial, "admin official required")

// RequireResident lets citizens and community members through
var RequireResident = guard(func(p models.Principal) bool { return !p.IsOfficial() }, "only residents can do this")

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// Auth handles sign up, token issuing and the current user
type Auth struct {
	Service *services.AuthService
	Login   *api.Authenticator
}

// RegisterHandler creates an account and returns a token for it
func (a Auth) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid registration", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := a.Service.Register(ctx, in)
	if err != nil {
		writeError(w, "failed to register", err)
		return
	}
	token, err := a.Service.IssueToken(user)
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}
	zap.S().Infow("user registered", "userId", user.ID.Hex(), "role", user.Role)
	writeJSON(w, http.StatusCreated, token)
}

// CreateTokenHandler exchanges basic auth credentials for a bearer token
func (a Auth) CreateTokenHandler(w http.ResponseWriter, r *http.Request) {
	p, err := a.Login.Login(r)
	if err != nil {
		config.ErrorStatus("invalid credentials", http.StatusUnauthorized, w, err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := a.Service.Me(ctx, p.UserID)
	if err != nil {
		writeError(w, "failed to load user", err)
		return
	}
	token, err := a.Service.IssueToken(user)
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// MeHandler returns the caller's user record
func (a Auth) MeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	user, err := a.Service.Me(ctx, caller(r).UserID)
	if err != nil {
		writeError(w, "failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

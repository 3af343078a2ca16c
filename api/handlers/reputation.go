package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// Reputation serves profiles, point history and district leaderboards
type Reputation struct {
	Service *services.ReputationService
}

// ProfileHandler returns the caller's RP total and role, scoped to ?districtId= when given
func (rp Reputation) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	profile, err := rp.Service.Profile(ctx, caller(r).UserID, r.URL.Query().Get("districtId"))
	if err != nil {
		writeError(w, "failed to load profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HistoryHandler returns the caller's reputation events, newest first
func (rp Reputation) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, "invalid paging", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	events, err := rp.Service.History(ctx, caller(r).UserID, page)
	if err != nil {
		writeError(w, "failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// LeaderboardHandler ranks a district's users by RP
func (rp Reputation) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	entries, err := rp.Service.Leaderboard(ctx, mux.Vars(r)["districtId"], limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// Community handles district communities, membership and chat
type Community struct {
	Service *services.CommunityService
}

func districtCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
}

// ListCommunitiesHandler returns a page of communities, optionally for ?state=
func (c Community) ListCommunitiesHandler(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, "invalid paging", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	communities, err := c.Service.List(ctx, r.URL.Query().Get("state"), page)
	if err != nil {
		writeError(w, "failed to list communities", err)
		return
	}
	writeJSON(w, http.StatusOK, communities)
}

// DistrictCommunityHandler finds or creates the community for a state and district
func (c Community) DistrictCommunityHandler(w http.ResponseWriter, r *http.Request) {
	var in services.DistrictInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid district", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	community, err := c.Service.FindOrCreate(ctx, in)
	if err != nil {
		writeError(w, "failed to resolve community", err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

// CommunityHandler returns one community by district code
func (c Community) CommunityHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	community, err := c.Service.Get(ctx, districtCode(r))
	if err != nil {
		writeError(w, "failed to get community", err)
		return
	}
	writeJSON(w, http.StatusOK, community)
}

// JoinHandler adds the caller to a community
func (c Community) JoinHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := c.Service.Join(ctx, districtCode(r), caller(r).UserID)
	if err != nil {
		writeError(w, "failed to join community", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// LeaveHandler removes the caller from a community
func (c Community) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := c.Service.Leave(ctx, districtCode(r), caller(r).UserID)
	if err != nil {
		writeError(w, "failed to leave community", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MessagesHandler returns recent chat messages. Only members may read them.
func (c Community) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	msgs, err := c.Service.Messages(ctx, districtCode(r), caller(r).UserID, limit)
	if err != nil {
		writeError(w, "failed to read messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// PostMessageHandler appends a chat message from the caller
func (c Community) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var in services.MessageInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid message", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	msg, err := c.Service.PostMessage(ctx, districtCode(r), caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to post message", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

type memberRoleRequest struct {
	Role models.MemberRole `json:"role"`
}

// MemberRoleHandler appoints or steps down a community leader or moderator
func (c Community) MemberRoleHandler(w http.ResponseWriter, r *http.Request) {
	user, err := objectID(r, "userId")
	if err != nil {
		writeError(w, "invalid user id", err)
		return
	}
	var body memberRoleRequest
	if err := decode(r, &body); err != nil {
		writeError(w, "invalid role", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	member, err := c.Service.SetMemberRole(ctx, districtCode(r), user, body.Role)
	if err != nil {
		writeError(w, "failed to set member role", err)
		return
	}
	zap.S().Infow("community role changed", "district", districtCode(r), "user", user.Hex(), "role", body.Role, "by", caller(r).UserID.Hex())
	writeJSON(w, http.StatusOK, member)
}

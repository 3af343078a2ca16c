package handlers

import (
	"context"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// defaultRadiusKm is used by nearby searches without radiusKm
const defaultRadiusKm = 5.0

// Issue handles the citizen facing issue endpoints and the official
// assignment and rejection endpoints.
type Issue struct {
	Service *services.IssueService
}

// CreateIssueHandler files a new issue for the caller
func (i Issue) CreateIssueHandler(w http.ResponseWriter, r *http.Request) {
	var in services.CreateIssueInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid issue", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.Service.Create(ctx, caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to create issue", err)
		return
	}
	zap.S().Infow("issue created", "issueId", issue.ID.Hex(), "category", issue.Category, "districtId", issue.DistrictID)
	writeJSON(w, http.StatusCreated, issue)
}

func issueFilter(r *http.Request) (databases.IssueFilter, error) {
	q := r.URL.Query()
	f := databases.IssueFilter{
		Status:     models.IssueStatus(q.Get("status")),
		Category:   models.IssueCategory(q.Get("category")),
		Priority:   models.Priority(q.Get("priority")),
		DistrictID: q.Get("districtId"),
	}
	reportedBy, err := optionalObjectID(r, "reportedBy")
	if err != nil {
		return f, err
	}
	f.ReportedBy = reportedBy
	return f, nil
}

// ListIssuesHandler returns a filtered page of issues
func (i Issue) ListIssuesHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := issueFilter(r)
	if err != nil {
		writeError(w, "invalid filter", err)
		return
	}
	i.list(w, r, filter)
}

// MyIssuesHandler returns the issues the caller reported
func (i Issue) MyIssuesHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := issueFilter(r)
	if err != nil {
		writeError(w, "invalid filter", err)
		return
	}
	me := caller(r).UserID
	filter.ReportedBy = &me
	i.list(w, r, filter)
}

func (i Issue) list(w http.ResponseWriter, r *http.Request, filter databases.IssueFilter) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, "invalid paging", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := i.Service.List(ctx, filter, page)
	if err != nil {
		writeError(w, "failed to list issues", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NearbyIssuesHandler returns open issues within radiusKm of lat/lng
func (i Issue) NearbyIssuesHandler(w http.ResponseWriter, r *http.Request) {
	lat, okLat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, "invalid latitude", err)
		return
	}
	lng, okLng, err := queryFloat(r, "lng")
	if err != nil {
		writeError(w, "invalid longitude", err)
		return
	}
	if !okLat || !okLng {
		writeError(w, "lat and lng are required", &apierrors.ValidationError{Fields: []apierrors.FieldError{
			{Field: "lat", Message: "is required"},
			{Field: "lng", Message: "is required"},
		}})
		return
	}
	radius, ok, err := queryFloat(r, "radiusKm")
	if err != nil {
		writeError(w, "invalid radius", err)
		return
	}
	if !ok {
		radius = defaultRadiusKm
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, "invalid limit", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issues, err := i.Service.Nearby(ctx, lat, lng, radius, limit)
	if err != nil {
		writeError(w, "failed to find nearby issues", err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// IssueByIDHandler returns one issue
func (i Issue) IssueByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.Service.Get(ctx, id)
	if err != nil {
		writeError(w, "failed to get issue", err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// UpvoteHandler toggles the caller's upvote
func (i Issue) UpvoteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := i.Service.ToggleUpvote(ctx, id, caller(r).UserID)
	if err != nil {
		writeError(w, "failed to toggle upvote", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type commentRequest struct {
	Text string `json:"text"`
}

// CommentHandler appends a comment to an issue
func (i Issue) CommentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	var body commentRequest
	if err := decode(r, &body); err != nil {
		writeError(w, "invalid comment", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	c, err := i.Service.AddComment(ctx, id, caller(r).UserID, body.Text)
	if err != nil {
		writeError(w, "failed to add comment", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// VerificationHandler records the caller's community verdict on an issue
func (i Issue) VerificationHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	var in services.VerificationInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid verification", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := i.Service.SubmitVerification(ctx, id, caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to record verification", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type assignRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// AssignHandler hands an issue to an official
func (i Issue) AssignHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	var body assignRequest
	if err := decode(r, &body); err != nil {
		writeError(w, "invalid assignment", err)
		return
	}
	assignee, err := primitive.ObjectIDFromHex(body.AssigneeID)
	if err != nil {
		writeError(w, "invalid assignment", apierrors.Validation("assigneeId", "must be a valid id"))
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := i.Service.Assign(ctx, id, assignee)
	if err != nil {
		writeError(w, "failed to assign issue", err)
		return
	}
	zap.S().Infow("issue assigned", "issueId", id.Hex(), "assignee", assignee.Hex(), "by", caller(r).UserID.Hex())
	writeJSON(w, http.StatusOK, issue)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectHandler rejects an issue
func (i Issue) RejectHandler(w http.ResponseWriter, r *http.Request) {
	i.rejectWith(w, r, i.Service.Reject)
}

// FlagFakeHandler rejects an issue as fake and penalizes the reporter
func (i Issue) FlagFakeHandler(w http.ResponseWriter, r *http.Request) {
	i.rejectWith(w, r, i.Service.FlagFake)
}

func (i Issue) rejectWith(w http.ResponseWriter, r *http.Request, reject func(context.Context, primitive.ObjectID, string) (*models.Issue, error)) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	var body rejectRequest
	if err := decode(r, &body); err != nil {
		writeError(w, "invalid rejection", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	issue, err := reject(ctx, id, body.Reason)
	if err != nil {
		writeError(w, "failed to reject issue", err)
		return
	}
	zap.S().Infow("issue rejected", "issueId", id.Hex(), "by", caller(r).UserID.Hex())
	writeJSON(w, http.StatusOK, issue)
}

package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/clients"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// Geocoder turns coordinates into a place
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*clients.Place, error)
}

// IssueService handles citizen issues from creation to closure, except the
// report driven transitions which belong to ReviewService
type IssueService struct {
	Issues        databases.IssueDatabase
	Users         databases.UserDatabase
	Communities   databases.CommunityDatabase
	Events        databases.ReputationEventDatabase
	Verifications databases.VerificationDatabase
	Tx            databases.Transactor
	Notifier      *NotificationService
	Geocoder      Geocoder
}

// LocationInput is the location of a new issue
type LocationInput struct {
	Address  string   `json:"address" validate:"max=500"`
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng      *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Landmark string   `json:"landmark" validate:"max=200"`
	State    string   `json:"state" validate:"max=100"`
	District string   `json:"district" validate:"max=100"`
}

// CreateIssueInput is a new issue as filed by a citizen
type CreateIssueInput struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"required,max=2000"`
	Category    models.IssueCategory `json:"category" validate:"required,oneof=pothole streetlight garbage water traffic noise safety other"`
	Priority    models.Priority      `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Location    LocationInput        `json:"location" validate:"required"`
	Images      []string             `json:"images" validate:"max=10,dive,url"`
	AISuggested *models.AISuggestion `json:"aiSuggested"`
}

// Create stores a reported issue. Missing address details are filled by
// reverse geocoding, falling back to the raw coordinates.
func (s *IssueService) Create(ctx context.Context, reporter primitive.ObjectID, in CreateIssueInput) (*models.Issue, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	loc := models.Location{
		Address:  strings.TrimSpace(in.Location.Address),
		Lat:      *in.Location.Lat,
		Lng:      *in.Location.Lng,
		Landmark: in.Location.Landmark,
		State:    strings.TrimSpace(in.Location.State),
		District: strings.TrimSpace(in.Location.District),
	}
	s.resolvePlace(ctx, &loc)

	districtID := ""
	if loc.State != "" && loc.District != "" {
		districtID = models.GenerateDistrictCode(loc.State, loc.District)
	} else if user, err := s.Users.FindByID(ctx, reporter); err == nil {
		districtID = user.DistrictID
	}

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	images := in.Images
	if images == nil {
		images = []string{}
	}
	at := now()
	issue := models.Issue{
		ID:          primitive.NewObjectID(),
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Priority:    priority,
		Status:      models.IssueReported,
		Location:    loc,
		DistrictID:  districtID,
		ReportedBy:  reporter,
		Images:      images,
		Upvotes:     []primitive.ObjectID{},
		Comments:    []models.Comment{},
		AISuggested: in.AISuggested,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if err := s.Issues.Insert(ctx, issue); err != nil {
		return nil, apierrors.Internal("create issue", err)
	}
	zap.S().Infow("issue reported", "issue", issue.ID.Hex(), "category", issue.Category, "district", districtID)

	if districtID != "" {
		if err := s.Communities.IncrementStat(ctx, districtID, databases.StatIssuesReported, 1); err != nil {
			zap.S().Warnw("failed to count reported issue", "district", districtID, "error", err)
		}
	}
	return &issue, nil
}

func (s *IssueService) resolvePlace(ctx context.Context, loc *models.Location) {
	if loc.Address != "" && loc.State != "" && loc.District != "" {
		return
	}
	if s.Geocoder != nil {
		place, err := s.Geocoder.Reverse(ctx, loc.Lat, loc.Lng)
		if err == nil {
			if loc.Address == "" {
				loc.Address = place.Address
			}
			if loc.State == "" {
				loc.State = place.State
			}
			if loc.District == "" {
				loc.District = place.District
			}
		} else {
			zap.S().Warnw("reverse geocoding failed, using coordinates", "lat", loc.Lat, "lng", loc.Lng, "error", err)
		}
	}
	if loc.Address == "" {
		loc.Address = fmt.Sprintf("%.6f, %.6f", loc.Lat, loc.Lng)
	}
}

// Get returns one issue
func (s *IssueService) Get(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue, err := s.Issues.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("get issue", err)
	}
	return issue, nil
}

// IssuePage is one page of issues with the total match count
type IssuePage struct {
	Issues []models.Issue `json:"issues"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// List filters issues, newest first
func (s *IssueService) List(ctx context.Context, filter databases.IssueFilter, page databases.Page) (*IssuePage, error) {
	var verrs validationErrors
	if filter.Status != "" && !validIssueStatus(filter.Status) {
		verrs.add("status", "is not a known issue status")
	}
	if filter.Category != "" && !filter.Category.Valid() {
		verrs.add("category", "is not a known category")
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		verrs.add("priority", "must be one of low medium high urgent")
	}
	if err := verrs.err(); err != nil {
		return nil, err
	}
	page = page.Normalize()
	issues, total, err := s.Issues.List(ctx, filter, page)
	if err != nil {
		return nil, apierrors.Internal("list issues", err)
	}
	return &IssuePage{Issues: issues, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

func validIssueStatus(st models.IssueStatus) bool {
	for _, v := range models.IssueStatuses {
		if v == st {
			return true
		}
	}
	return false
}

// NearbyIssue is an issue with its distance from the query point
type NearbyIssue struct {
	models.Issue
	DistanceKm float64 `json:"distanceKm"`
}

const (
	defaultNearbyRadiusKm = 5
	maxNearbyRadiusKm     = 50
	nearbyScanLimit       = 500
)

// Nearby returns issues within radiusKm of a point, closest first
func (s *IssueService) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]NearbyIssue, error) {
	var verrs validationErrors
	if lat < -90 || lat > 90 {
		verrs.add("lat", "must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		verrs.add("lng", "must be between -180 and 180")
	}
	if radiusKm < 0 || radiusKm > maxNearbyRadiusKm {
		verrs.add("radiusKm", fmt.Sprintf("must be between 0 and %d", maxNearbyRadiusKm))
	}
	if err := verrs.err(); err != nil {
		return nil, err
	}
	if radiusKm == 0 {
		radiusKm = defaultNearbyRadiusKm
	}
	if limit <= 0 || limit > databases.MaxLimit {
		limit = databases.DefaultLimit
	}

	candidates, err := s.Issues.FindInBox(ctx, boundingBox(lat, lng, radiusKm), nearbyScanLimit)
	if err != nil {
		return nil, apierrors.Internal("nearby issues", err)
	}
	out := []NearbyIssue{}
	for _, is := range candidates {
		d := haversineKm(lat, lng, is.Location.Lat, is.Location.Lng)
		if d <= radiusKm {
			out = append(out, NearbyIssue{Issue: is, DistanceKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ToggleUpvote adds the user's upvote, or removes it if already present
func (s *IssueService) ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (*models.UpvoteResult, error) {
	res, err := s.Issues.ToggleUpvote(ctx, id, user)
	if err != nil {
		return nil, apierrors.Internal("toggle upvote", err)
	}
	return &res, nil
}

const maxCommentLength = 500

// AddComment appends a comment to an issue
func (s *IssueService) AddComment(ctx context.Context, id, user primitive.ObjectID, text string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apierrors.Validation("text", "is required")
	}
	if len([]rune(text)) > maxCommentLength {
		return nil, apierrors.Validation("text", "must be at most 500 characters")
	}
	c := models.Comment{ID: uuid.NewString(), User: user, Text: text, CreatedAt: now()}
	if err := s.Issues.AddComment(ctx, id, c); err != nil {
		return nil, apierrors.Internal("add comment", err)
	}
	return &c, nil
}

// Assign gives the issue to an official. A reported issue becomes
// acknowledged, open issues only change hands.
func (s *IssueService) Assign(ctx context.Context, id, assigneeID primitive.ObjectID) (*models.Issue, error) {
	assignee, err := s.Users.FindByID(ctx, assigneeID)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, apierrors.Validation("assignedTo", "must reference an existing official")
		}
		return nil, apierrors.Internal("assign issue", err)
	}
	if assignee.Role != models.UserOfficial {
		return nil, apierrors.Validation("assignedTo", "must reference an official")
	}
	issue, err := s.Issues.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("assign issue", err)
	}
	if issue.Status.IsTerminal() {
		return nil, apierrors.Conflict("issue is %s and cannot be assigned", issue.Status)
	}

	at := now()
	set := bson.M{"assignedTo": assigneeID, "assignedAt": at}
	acknowledged := issue.Status == models.IssueReported
	if acknowledged {
		set["status"] = models.IssueAcknowledged
	}
	if err := s.Issues.UpdateIfStatus(ctx, id, issue.Status, set); err != nil {
		return nil, apierrors.Internal("assign issue", err)
	}
	zap.S().Infow("issue assigned", "issue", id.Hex(), "assignee", assigneeID.Hex(), "acknowledged", acknowledged)

	s.Notifier.Notify(ctx, models.NewNotification(assigneeID, models.NotificationIssueAssigned,
		"New issue assigned", fmt.Sprintf("You have been assigned %q.", issue.Title), id, at))
	if acknowledged {
		s.Notifier.Notify(ctx, models.NewNotification(issue.ReportedBy, models.NotificationIssueStatusUpdate,
			"Your issue was acknowledged", fmt.Sprintf("%q has been acknowledged and assigned to an official.", issue.Title), id, at))
		issue.Status = models.IssueAcknowledged
	}
	issue.AssignedTo = &assigneeID
	issue.AssignedAt = &at
	return issue, nil
}

// Reject closes an open issue with a reason
func (s *IssueService) Reject(ctx context.Context, id primitive.ObjectID, reason string) (*models.Issue, error) {
	return s.reject(ctx, id, reason, false)
}

// FlagFake rejects the issue as fabricated and penalizes the reporter in
// the same transaction
func (s *IssueService) FlagFake(ctx context.Context, id primitive.ObjectID, reason string) (*models.Issue, error) {
	return s.reject(ctx, id, reason, true)
}

func (s *IssueService) reject(ctx context.Context, id primitive.ObjectID, reason string, fake bool) (*models.Issue, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apierrors.Validation("reason", "is required")
	}
	if len([]rune(reason)) > 1000 {
		return nil, apierrors.Validation("reason", "must be at most 1000 characters")
	}
	issue, err := s.Issues.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("reject issue", err)
	}
	if !models.CanTransitionIssue(issue.Status, models.IssueRejected) {
		return nil, apierrors.Conflict("issue is %s and cannot be rejected", issue.Status)
	}

	at := now()
	title := "Your issue was rejected"
	if fake {
		title = "Your issue was flagged as fake"
	}
	note := models.NewNotification(issue.ReportedBy, models.NotificationIssueStatusUpdate,
		title, fmt.Sprintf("%q was closed: %s", issue.Title, reason), id, at)

	err = s.Tx.WithTransaction(ctx, func(tx context.Context) error {
		if err := s.Issues.UpdateIfStatus(tx, id, issue.Status, bson.M{"status": models.IssueRejected, "rejectionReason": reason}); err != nil {
			return err
		}
		if fake {
			if _, err := s.Events.Append(tx, models.NewReputationEvent(issue.ReportedBy, models.EventFakeIssuePenalty, issue.DistrictID, id, at)); err != nil {
				return err
			}
		}
		return s.Notifier.Record(tx, note)
	})
	if err != nil {
		return nil, apierrors.Internal("reject issue", err)
	}
	zap.S().Infow("issue rejected", "issue", id.Hex(), "fake", fake)
	s.Notifier.Deliver(note)

	issue.Status = models.IssueRejected
	issue.Rejection = reason
	return issue, nil
}

// VerificationInput is a community member's verdict on an issue
type VerificationInput struct {
	Verdict models.Verdict `json:"verdict" validate:"required,oneof=correct incorrect"`
	Comment string         `json:"comment" validate:"max=500"`
}

// VerificationResult is the tally after a vote and the awards it triggered
type VerificationResult struct {
	Tally   models.VerificationTally     `json:"tally"`
	Awarded []models.ReputationEventType `json:"awarded"`
}

// SubmitVerification records one vote per user per issue. Once the quorum
// agrees the report was accurate, the reporter is rewarded.
func (s *IssueService) SubmitVerification(ctx context.Context, id, voter primitive.ObjectID, in VerificationInput) (*VerificationResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	issue, err := s.Issues.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("verify issue", err)
	}
	if issue.ReportedBy == voter {
		return nil, apierrors.Conflict("reporters cannot verify their own issue")
	}
	if issue.Status == models.IssueRejected {
		return nil, apierrors.Conflict("issue was rejected and can no longer be verified")
	}

	err = s.Verifications.Insert(ctx, models.CommunityVerification{
		ID:        primitive.NewObjectID(),
		Issue:     id,
		User:      voter,
		Verdict:   in.Verdict,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: now(),
	})
	if err != nil {
		return nil, apierrors.Internal("verify issue", err)
	}
	tally, err := s.Verifications.Tally(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("verify issue", err)
	}

	result := &VerificationResult{Tally: tally, Awarded: []models.ReputationEventType{}}
	if !tally.Accurate {
		return result, nil
	}
	// appended one by one: each is idempotent on its own key
	at := now()
	for _, typ := range []models.ReputationEventType{models.EventCommunityConfirmedReport, models.EventAccurateCategorization} {
		added, err := s.Events.Append(ctx, models.NewReputationEvent(issue.ReportedBy, typ, issue.DistrictID, id, at))
		if err != nil {
			return nil, apierrors.Internal("verify issue", err)
		}
		if added {
			result.Awarded = append(result.Awarded, typ)
		}
	}
	if len(result.Awarded) > 0 {
		zap.S().Infow("community confirmed issue", "issue", id.Hex(), "reporter", issue.ReportedBy.Hex())
	}
	return result, nil
}

package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// now is the service clock. Mongo stores milliseconds, so times are
// truncated to match what a read returns.
var now = func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// ReputationService keeps the append-only RP ledger and folds it into
// profiles and leaderboards
type ReputationService struct {
	Events databases.ReputationEventDatabase
	Users  databases.UserDatabase
}

// NewReputationService wires the ledger and user stores
func NewReputationService(events databases.ReputationEventDatabase, users databases.UserDatabase) *ReputationService {
	return &ReputationService{Events: events, Users: users}
}

// Award appends an issue scoped event. It reports false when the same
// outcome was already awarded to the user for that issue.
func (s *ReputationService) Award(ctx context.Context, user primitive.ObjectID, eventType models.ReputationEventType, districtID string, issueID primitive.ObjectID) (bool, error) {
	if _, ok := models.EventPoints[eventType]; !ok {
		return false, apierrors.Validation("eventType", "unknown reputation event "+string(eventType))
	}
	added, err := s.Events.Append(ctx, models.NewReputationEvent(user, eventType, districtID, issueID, now()))
	if err != nil {
		return false, apierrors.Internal("award reputation", err)
	}
	if added {
		zap.S().Infow("reputation awarded", "user", user.Hex(), "event", eventType, "issue", issueID.Hex())
	}
	return added, nil
}

// Profile folds the user's events in districtID, or globally when empty
func (s *ReputationService) Profile(ctx context.Context, user primitive.ObjectID, districtID string) (*models.ReputationProfile, error) {
	total, err := s.Events.TotalForUser(ctx, user, districtID)
	if err != nil {
		return nil, apierrors.Internal("reputation profile", err)
	}
	profile := &models.ReputationProfile{
		UserID:     user,
		DistrictID: districtID,
		TotalRP:    total,
		Role:       models.RoleFor(total),
	}
	if next, missing, ok := models.NextRole(total); ok {
		profile.NextRole = next.Role
		profile.PointsToNext = missing
	}
	return profile, nil
}

// History lists the user's events, newest first
func (s *ReputationService) History(ctx context.Context, user primitive.ObjectID, page databases.Page) ([]models.ReputationEvent, error) {
	events, err := s.Events.ListForUser(ctx, user, page)
	if err != nil {
		return nil, apierrors.Internal("reputation history", err)
	}
	return events, nil
}

// Leaderboard ranks users of districtID by RP and returns the top limit
func (s *ReputationService) Leaderboard(ctx context.Context, districtID string, limit int) ([]models.LeaderboardEntry, error) {
	if districtID == "" {
		return nil, apierrors.Validation("districtId", "is required")
	}
	if limit <= 0 || limit > databases.MaxLimit {
		limit = databases.DefaultLimit
	}
	totals, err := s.Events.TotalsByDistrict(ctx, districtID)
	if err != nil {
		return nil, apierrors.Internal("leaderboard", err)
	}
	entries := models.RankLeaderboard(totals)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	ids := make([]primitive.ObjectID, len(entries))
	for i, e := range entries {
		ids[i] = e.UserID
	}
	users, err := s.Users.FindByIDs(ctx, ids)
	if err != nil {
		zap.S().Warnw("leaderboard names unavailable", "district", districtID, "error", err)
		return entries, nil
	}
	for i := range entries {
		entries[i].Name = users[entries[i].UserID].Name
	}
	return entries, nil
}

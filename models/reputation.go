package models

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReputationEventType names an outcome that moves a user's RP
type ReputationEventType string

// Reputation event types
const (
	EventIssueVerifiedResolved    ReputationEventType = "issue_verified_resolved"
	EventAfterPhotoUploaded       ReputationEventType = "after_photo_uploaded"
	EventAccurateCategorization   ReputationEventType = "accurate_categorization"
	EventFalseResolutionFlagged   ReputationEventType = "false_resolution_flagged"
	EventCommunityConfirmedReport ReputationEventType = "community_confirmed_report"
	EventFakeIssuePenalty         ReputationEventType = "fake_issue_penalty"
	EventSpamPenalty              ReputationEventType = "spam_penalty"
)

// EventPoints is the fixed RP value of each event type
var EventPoints = map[ReputationEventType]int{
	EventIssueVerifiedResolved:    10,
	EventAfterPhotoUploaded:       8,
	EventAccurateCategorization:   5,
	EventFalseResolutionFlagged:   12,
	EventCommunityConfirmedReport: 15,
	EventFakeIssuePenalty:         -20,
	EventSpamPenalty:              -10,
}

// ReputationEvent holds the structure for the reputationevents collection in mongo.
// Events are never updated or removed.
type ReputationEvent struct {
	ID             primitive.ObjectID     `json:"_id" bson:"_id"`
	UserID         primitive.ObjectID     `json:"userId" bson:"userId"`
	EventType      ReputationEventType    `json:"eventType" bson:"eventType"`
	Points         int                    `json:"points" bson:"points"`
	DistrictID     string                 `json:"districtId,omitempty" bson:"districtId,omitempty"`
	RelatedIssue   *primitive.ObjectID    `json:"relatedIssue,omitempty" bson:"relatedIssue,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty" bson:"idempotencyKey,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" bson:"createdAt"`
}

// NewReputationEvent builds an event for an issue outcome with its idempotency key set
func NewReputationEvent(userID primitive.ObjectID, eventType ReputationEventType, districtID string, issueID primitive.ObjectID, now time.Time) ReputationEvent {
	issue := issueID
	return ReputationEvent{
		ID:             primitive.NewObjectID(),
		UserID:         userID,
		EventType:      eventType,
		Points:         EventPoints[eventType],
		DistrictID:     districtID,
		RelatedIssue:   &issue,
		IdempotencyKey: fmt.Sprintf("%s_%s_%s", eventType, userID.Hex(), issueID.Hex()),
		CreatedAt:      now,
	}
}

// Role is derived from a user's total RP
type Role string

// Roles, lowest first
const (
	RoleResident           Role = "resident"
	RoleCivicHelper        Role = "civic_helper"
	RoleCommunityValidator Role = "community_validator"
	RoleCivicChampion      Role = "civic_champion"
)

// RoleThreshold is the RP needed to hold a role
type RoleThreshold struct {
	Role      Role `json:"role"`
	MinPoints int  `json:"minPoints"`
}

// RoleThresholds ascending by MinPoints
var RoleThresholds = []RoleThreshold{
	{RoleResident, 0},
	{RoleCivicHelper, 50},
	{RoleCommunityValidator, 120},
	{RoleCivicChampion, 300},
}

// RoleFor returns the highest role whose threshold totalRP meets
func RoleFor(totalRP int) Role {
	role := RoleResident
	for _, t := range RoleThresholds {
		if totalRP >= t.MinPoints {
			role = t.Role
		}
	}
	return role
}

// NextRole returns the next role above totalRP and the points still missing.
// ok is false at the top role. Negative totals still point at the first
// role above resident.
func NextRole(totalRP int) (next RoleThreshold, missing int, ok bool) {
	for _, t := range RoleThresholds[1:] {
		if totalRP < t.MinPoints {
			return t, t.MinPoints - totalRP, true
		}
	}
	return RoleThreshold{}, 0, false
}

// UserTotal is one user's folded RP within a scope
type UserTotal struct {
	UserID    primitive.ObjectID `json:"userId" bson:"_id"`
	TotalRP   int                `json:"totalRP" bson:"totalRP"`
	ReachedAt time.Time          `json:"reachedAt" bson:"reachedAt"`
}

// LeaderboardEntry is a ranked user
type LeaderboardEntry struct {
	Rank    int                `json:"rank"`
	UserID  primitive.ObjectID `json:"userId"`
	Name    string             `json:"name,omitempty"`
	TotalRP int                `json:"totalRP"`
	Role    Role               `json:"role"`
}

// RankLeaderboard sorts totals by RP descending. Equal totals go to whoever
// reached that total first, then to the lower user id.
func RankLeaderboard(totals []UserTotal) []LeaderboardEntry {
	sorted := make([]UserTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalRP != b.TotalRP {
			return a.TotalRP > b.TotalRP
		}
		if !a.ReachedAt.Equal(b.ReachedAt) {
			return a.ReachedAt.Before(b.ReachedAt)
		}
		return a.UserID.Hex() < b.UserID.Hex()
	})

	entries := make([]LeaderboardEntry, len(sorted))
	for i, t := range sorted {
		entries[i] = LeaderboardEntry{
			Rank:    i + 1,
			UserID:  t.UserID,
			TotalRP: t.TotalRP,
			Role:    RoleFor(t.TotalRP),
		}
	}
	return entries
}

// ReputationProfile summarizes a user's standing
type ReputationProfile struct {
	UserID       primitive.ObjectID `json:"userId"`
	DistrictID   string             `json:"districtId,omitempty"`
	TotalRP      int                `json:"totalRP"`
	Role         Role               `json:"role"`
	NextRole     Role               `json:"nextRole,omitempty"`
	PointsToNext int                `json:"pointsToNext,omitempty"`
}

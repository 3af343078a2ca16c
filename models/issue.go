package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IssueCategory is the kind of municipal problem being reported
type IssueCategory string

// Issue categories
const (
	CategoryPothole     IssueCategory = "pothole"
	CategoryStreetlight IssueCategory = "streetlight"
	CategoryGarbage     IssueCategory = "garbage"
	CategoryWater       IssueCategory = "water"
	CategoryTraffic     IssueCategory = "traffic"
	CategoryNoise       IssueCategory = "noise"
	CategorySafety      IssueCategory = "safety"
	CategoryOther       IssueCategory = "other"
)

// Categories lists every valid issue category
var Categories = []IssueCategory{
	CategoryPothole, CategoryStreetlight, CategoryGarbage, CategoryWater,
	CategoryTraffic, CategoryNoise, CategorySafety, CategoryOther,
}

// Valid reports whether c is a known category
func (c IssueCategory) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Priority is shared by issues and official tasks
type Priority string

// Priorities
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities, urgent highest. Unknown values rank with low.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// IssueStatus is the lifecycle state of an issue
type IssueStatus string

// Issue statuses
const (
	IssueReported     IssueStatus = "reported"
	IssueAcknowledged IssueStatus = "acknowledged"
	IssueInProgress   IssueStatus = "in-progress"
	IssueResolved     IssueStatus = "resolved"
	IssueRejected     IssueStatus = "rejected"
)

// IssueStatuses lists every issue status
var IssueStatuses = []IssueStatus{IssueReported, IssueAcknowledged, IssueInProgress, IssueResolved, IssueRejected}

// Location is where an issue or task is
type Location struct {
	Address  string  `json:"address" bson:"address"`
	Lat      float64 `json:"lat" bson:"lat"`
	Lng      float64 `json:"lng" bson:"lng"`
	Landmark string  `json:"landmark,omitempty" bson:"landmark,omitempty"`
	State    string  `json:"state,omitempty" bson:"state,omitempty"`
	District string  `json:"district,omitempty" bson:"district,omitempty"`
}

// Comment is left on an issue by any user
type Comment struct {
	ID        string             `json:"id" bson:"id"`
	User      primitive.ObjectID `json:"user" bson:"user"`
	Text      string             `json:"text" bson:"text"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// AISuggestion records what the classifier proposed when the issue was filed
type AISuggestion struct {
	Category   IssueCategory `json:"category" bson:"category"`
	Confidence float64       `json:"confidence" bson:"confidence"`
	Department string        `json:"department,omitempty" bson:"department,omitempty"`
}

// Issue holds the structure for the issues collection in mongo
type Issue struct {
	ID          primitive.ObjectID   `json:"_id" bson:"_id"`
	Title       string               `json:"title" bson:"title"`
	Description string               `json:"description" bson:"description"`
	Category    IssueCategory        `json:"category" bson:"category"`
	Priority    Priority             `json:"priority" bson:"priority"`
	Status      IssueStatus          `json:"status" bson:"status"`
	Location    Location             `json:"location" bson:"location"`
	DistrictID  string               `json:"districtId,omitempty" bson:"districtId,omitempty"`
	ReportedBy  primitive.ObjectID   `json:"reportedBy" bson:"reportedBy"`
	AssignedTo  *primitive.ObjectID  `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	AssignedAt  *time.Time           `json:"assignedAt,omitempty" bson:"assignedAt,omitempty"`
	Images      []string             `json:"images" bson:"images"`
	Upvotes     []primitive.ObjectID `json:"upvotes" bson:"upvotes"`
	Comments    []Comment            `json:"comments" bson:"comments"`
	AISuggested *AISuggestion        `json:"aiSuggested,omitempty" bson:"aiSuggested,omitempty"`
	ResolvedAt  *time.Time           `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	Rejection   string               `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	CreatedAt   time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// UpvoteResult is returned by an upvote toggle
type UpvoteResult struct {
	Upvoted bool `json:"upvoted"`
	Count   int  `json:"count"`
}

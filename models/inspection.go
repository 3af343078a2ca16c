package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InspectionStatus is the lifecycle state of an inspection
type InspectionStatus string

// Inspection statuses
const (
	InspectionScheduled   InspectionStatus = "scheduled"
	InspectionInProgress  InspectionStatus = "in-progress"
	InspectionCompleted   InspectionStatus = "completed"
	InspectionCancelled   InspectionStatus = "cancelled"
	InspectionRescheduled InspectionStatus = "rescheduled"
)

// InspectionStatuses lists every inspection status
var InspectionStatuses = []InspectionStatus{
	InspectionScheduled, InspectionInProgress, InspectionCompleted, InspectionCancelled, InspectionRescheduled,
}

// ChecklistItem is one line of an inspection checklist
type ChecklistItem struct {
	Item    string `json:"item" bson:"item" validate:"required,max=200"`
	Checked bool   `json:"checked" bson:"checked"`
	Notes   string `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Inspection holds the structure for the inspections collection in mongo
type Inspection struct {
	ID              primitive.ObjectID  `json:"_id" bson:"_id"`
	InspectionID    string              `json:"inspectionId" bson:"inspectionId"`
	Title           string              `json:"title" bson:"title"`
	Description     string              `json:"description,omitempty" bson:"description,omitempty"`
	InspectionType  string              `json:"inspectionType" bson:"inspectionType"`
	RelatedIssue    *primitive.ObjectID `json:"relatedIssue,omitempty" bson:"relatedIssue,omitempty"`
	AssignedTo      *primitive.ObjectID `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	CreatedBy       primitive.ObjectID  `json:"createdBy" bson:"createdBy"`
	ScheduledDate   time.Time           `json:"scheduledDate" bson:"scheduledDate"`
	Status          InspectionStatus    `json:"status" bson:"status"`
	Priority        Priority            `json:"priority" bson:"priority"`
	Location        *Location           `json:"location,omitempty" bson:"location,omitempty"`
	Checklist       []ChecklistItem     `json:"checklist" bson:"checklist"`
	Findings        string              `json:"findings,omitempty" bson:"findings,omitempty"`
	ConditionRating int                 `json:"conditionRating,omitempty" bson:"conditionRating,omitempty"`
	Recommendations string              `json:"recommendations,omitempty" bson:"recommendations,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	ReminderSentAt  *time.Time          `json:"reminderSentAt,omitempty" bson:"reminderSentAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt" bson:"updatedAt"`
}

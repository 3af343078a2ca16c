package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType classifies a notification
type NotificationType string

// Notification types
const (
	NotificationIssueVerification NotificationType = "issue_verification"
	NotificationIssueStatusUpdate NotificationType = "issue_status_update"
	NotificationIssueAssigned     NotificationType = "issue_assigned"
	NotificationIssueResolved     NotificationType = "issue_resolved"
	NotificationSystem            NotificationType = "system"
)

// Notification holds the structure for the notifications collection in mongo
type Notification struct {
	ID           primitive.ObjectID  `json:"_id" bson:"_id"`
	Recipient    primitive.ObjectID  `json:"recipient" bson:"recipient"`
	Type         NotificationType    `json:"type" bson:"type"`
	Title        string              `json:"title" bson:"title"`
	Message      string              `json:"message" bson:"message"`
	RelatedIssue *primitive.ObjectID `json:"relatedIssue,omitempty" bson:"relatedIssue,omitempty"`
	Read         bool                `json:"read" bson:"read"`
	CreatedAt    time.Time           `json:"createdAt" bson:"createdAt"`
}

// NewNotification builds an unread notification about an issue
func NewNotification(recipient primitive.ObjectID, typ NotificationType, title, message string, issueID primitive.ObjectID, now time.Time) Notification {
	issue := issueID
	return Notification{
		ID:           primitive.NewObjectID(),
		Recipient:    recipient,
		Type:         typ,
		Title:        title,
		Message:      message,
		RelatedIssue: &issue,
		CreatedAt:    now,
	}
}

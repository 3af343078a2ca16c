package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// Pusher delivers a payload to a connected user in real time
type Pusher interface {
	Push(userID string, payload interface{}) bool
}

// NotificationService records notifications and pushes them to online users
type NotificationService struct {
	NDB    databases.NotificationDatabase
	Pusher Pusher
}

// NewNotificationService wires a notification store and an optional pusher
func NewNotificationService(ndb databases.NotificationDatabase, pusher Pusher) *NotificationService {
	return &NotificationService{NDB: ndb, Pusher: pusher}
}

// Record stores n. Use it inside transactions and call Deliver after commit.
func (s *NotificationService) Record(ctx context.Context, n models.Notification) error {
	return s.NDB.Insert(ctx, n)
}

// Deliver pushes already stored notifications to their recipients if online
func (s *NotificationService) Deliver(ns ...models.Notification) {
	if s.Pusher == nil {
		return
	}
	for _, n := range ns {
		if s.Pusher.Push(n.Recipient.Hex(), n) {
			zap.S().Debugw("notification pushed", "recipient", n.Recipient.Hex(), "type", n.Type)
		}
	}
}

// Notify records n and delivers it. Failures are logged, never returned,
// because a missed notification must not fail the action that caused it.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) {
	if err := s.Record(ctx, n); err != nil {
		zap.S().Warnw("failed to record notification", "recipient", n.Recipient.Hex(), "type", n.Type, "error", err)
		return
	}
	s.Deliver(n)
}

// List returns the recipient's notifications, newest first
func (s *NotificationService) List(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, page databases.Page) ([]models.Notification, error) {
	return s.NDB.ListForUser(ctx, recipient, unreadOnly, page)
}

// MarkRead flags one of the recipient's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, id, recipient primitive.ObjectID) error {
	return s.NDB.MarkRead(ctx, id, recipient)
}

// SystemNotification builds a notification that is not tied to an issue
func SystemNotification(recipient primitive.ObjectID, title, message string) models.Notification {
	return models.Notification{
		ID:        primitive.NewObjectID(),
		Recipient: recipient,
		Type:      models.NotificationSystem,
		Title:     title,
		Message:   message,
		CreatedAt: now(),
	}
}

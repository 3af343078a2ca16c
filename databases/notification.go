package databases

// go generate: mockery --name NotificationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
)

const notificationName = "notifications"

// NotificationDatabase contains the methods to use with the notification database
type NotificationDatabase interface {
	Insert(ctx context.Context, n models.Notification) error
	ListForUser(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, page Page) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, recipient primitive.ObjectID) error
}

type notificationDatabase struct {
	db DatabaseHelper
}

// NewNotificationDatabase initializes a new instance of notification database with the provided db connection
func NewNotificationDatabase(db DatabaseHelper) NotificationDatabase {
	return &notificationDatabase{
		db: db,
	}
}

func (n *notificationDatabase) coll() CollectionHelper {
	return n.db.Collection(notificationName)
}

func (n *notificationDatabase) Insert(ctx context.Context, notification models.Notification) error {
	_, err := n.coll().InsertOne(ctx, notification)
	return err
}

func (n *notificationDatabase) ListForUser(ctx context.Context, recipient primitive.ObjectID, unreadOnly bool, page Page) ([]models.Notification, error) {
	query := bson.M{"recipient": recipient}
	if unreadOnly {
		query["read"] = false
	}
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	out := []models.Notification{}
	err := findAll(ctx, n.coll(), query, &out, opts)
	return out, err
}

// MarkRead only touches notifications owned by recipient
func (n *notificationDatabase) MarkRead(ctx context.Context, id, recipient primitive.ObjectID) error {
	res, err := n.coll().UpdateOne(ctx, bson.M{"_id": id, "recipient": recipient}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apierrors.NotFound("notification", id.Hex())
	}
	return nil
}

package databases

// go generate: mockery --name ReputationEventDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/citizenvoice/citizenvoice-api/models"
)

const reputationEventName = "reputationevents"

// ReputationEventDatabase contains the methods to use with the append-only
// reputation event log
type ReputationEventDatabase interface {
	Append(ctx context.Context, event models.ReputationEvent) (bool, error)
	TotalForUser(ctx context.Context, userID primitive.ObjectID, districtID string) (int, error)
	TotalsByDistrict(ctx context.Context, districtID string) ([]models.UserTotal, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.ReputationEvent, error)
}

type reputationEventDatabase struct {
	db DatabaseHelper
}

// NewReputationEventDatabase initializes a new instance of reputation event database with the provided db connection
func NewReputationEventDatabase(db DatabaseHelper) ReputationEventDatabase {
	return &reputationEventDatabase{
		db: db,
	}
}

func (r *reputationEventDatabase) coll() CollectionHelper {
	return r.db.Collection(reputationEventName)
}

// Append stores event. It returns false without error when an event with the
// same idempotency key already exists. The key is read before inserting:
// inside a transaction a duplicate key write aborts the whole transaction, so
// the unique index only settles races between writers outside one.
func (r *reputationEventDatabase) Append(ctx context.Context, event models.ReputationEvent) (bool, error) {
	if event.IdempotencyKey != "" {
		n, err := r.coll().CountDocuments(ctx, bson.M{"idempotencyKey": event.IdempotencyKey})
		if err != nil {
			return false, err
		}
		if n > 0 {
			return false, nil
		}
	}
	_, err := r.coll().InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *reputationEventDatabase) TotalForUser(ctx context.Context, userID primitive.ObjectID, districtID string) (int, error) {
	match := bson.M{"userId": userID}
	if districtID != "" {
		match["districtId"] = districtID
	}
	cursor, err := r.coll().Aggregate(ctx, bson.A{
		bson.M{"$match": match},
		bson.M{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$points"}}},
	})
	if err != nil {
		return 0, err
	}
	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// TotalsByDistrict folds the district's events per user. reachedAt is the
// time of the user's latest event, which is when they arrived at their
// current total.
func (r *reputationEventDatabase) TotalsByDistrict(ctx context.Context, districtID string) ([]models.UserTotal, error) {
	cursor, err := r.coll().Aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{"districtId": districtID}},
		bson.M{"$group": bson.M{
			"_id":       "$userId",
			"totalRP":   bson.M{"$sum": "$points"},
			"reachedAt": bson.M{"$max": "$createdAt"},
		}},
	})
	if err != nil {
		return nil, err
	}
	totals := []models.UserTotal{}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, err
	}
	return totals, nil
}

func (r *reputationEventDatabase) ListForUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.ReputationEvent, error) {
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	events := []models.ReputationEvent{}
	err := findAll(ctx, r.coll(), bson.M{"userId": userID}, &events, opts)
	return events, err
}

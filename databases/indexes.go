package databases

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes lists the indexes every collection needs, keyed by collection name
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		userName: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		communityName: {
			{Keys: bson.D{{Key: "districtCode", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "state", Value: 1}}},
		},
		reputationEventName: {
			{Keys: bson.D{{Key: "idempotencyKey", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "districtId", Value: 1}, {Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		verificationName: {
			{Keys: bson.D{{Key: "issue", Value: 1}, {Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		issueName: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "districtId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "reportedBy", Value: 1}}},
			{Keys: bson.D{{Key: "location.lat", Value: 1}, {Key: "location.lng", Value: 1}}},
		},
		reportName: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "submittedAt", Value: 1}}},
			{Keys: bson.D{{Key: "issue", Value: 1}, {Key: "reportType", Value: 1}, {Key: "status", Value: 1}}},
		},
		notificationName: {
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		inspectionName: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduledDate", Value: 1}}},
		},
		workOrderName: {
			{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "status", Value: 1}}},
		},
		resourceRequestName: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
}

// EnsureIndexes creates every index from Indexes. Creating an existing index is a no-op.
func EnsureIndexes(ctx context.Context, db DatabaseHelper) error {
	for coll, models := range Indexes() {
		if err := db.Collection(coll).CreateIndexes(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

package databases

// go generate: mockery --name SchedulerLockDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const schedulerLockName = "schedulerlocks"

// SchedulerLockDatabase is a lease based lock shared by every api instance
type SchedulerLockDatabase interface {
	TryAcquireLock(ctx context.Context, job, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, job, holder string) error
}

type schedulerLockDatabase struct {
	db DatabaseHelper
}

// NewSchedulerLockDatabase initializes a new instance of scheduler lock database with the provided db connection
func NewSchedulerLockDatabase(db DatabaseHelper) SchedulerLockDatabase {
	return &schedulerLockDatabase{
		db: db,
	}
}

// TryAcquireLock takes the lease when it is free, expired or already ours.
// A live lease held by someone else makes the upsert collide on _id.
func (s *schedulerLockDatabase) TryAcquireLock(ctx context.Context, job, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	_, err := s.db.Collection(schedulerLockName).UpdateOne(ctx,
		bson.M{"_id": job, "$or": bson.A{
			bson.M{"expiresAt": bson.M{"$lt": now}},
			bson.M{"holder": holder},
		}},
		bson.M{"$set": bson.M{"holder": holder, "expiresAt": now.Add(ttl)}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *schedulerLockDatabase) ReleaseLock(ctx context.Context, job, holder string) error {
	_, err := s.db.Collection(schedulerLockName).UpdateOne(ctx,
		bson.M{"_id": job, "holder": holder},
		bson.M{"$set": bson.M{"expiresAt": time.Time{}}},
	)
	return err
}

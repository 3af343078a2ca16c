package databases

// go generate: mockery --name InspectionDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citizenvoice/citizenvoice-api/models"
)

const inspectionName = "inspections"

// InspectionDatabase contains the methods to use with the inspection database
type InspectionDatabase interface {
	Insert(ctx context.Context, in models.Inspection) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Inspection, error)
	List(ctx context.Context, filter TaskFilter, page Page) ([]models.Inspection, int64, error)
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.InspectionStatus, set bson.M) error
	DueForReminder(ctx context.Context, from, to time.Time) ([]models.Inspection, error)
	MarkReminded(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

type inspectionDatabase struct {
	db DatabaseHelper
}

// NewInspectionDatabase initializes a new instance of inspection database with the provided db connection
func NewInspectionDatabase(db DatabaseHelper) InspectionDatabase {
	return &inspectionDatabase{
		db: db,
	}
}

func (i *inspectionDatabase) coll() CollectionHelper {
	return i.db.Collection(inspectionName)
}

func (i *inspectionDatabase) Insert(ctx context.Context, in models.Inspection) error {
	_, err := i.coll().InsertOne(ctx, in)
	return err
}

func (i *inspectionDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Inspection, error) {
	in := &models.Inspection{}
	if err := findOneByID(ctx, i.coll(), "inspection", id, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (i *inspectionDatabase) List(ctx context.Context, filter TaskFilter, page Page) ([]models.Inspection, int64, error) {
	query := filter.bson("createdBy")
	total, err := i.coll().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "scheduledDate", Value: 1}})
	out := []models.Inspection{}
	if err := findAll(ctx, i.coll(), query, &out, opts); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (i *inspectionDatabase) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.InspectionStatus, set bson.M) error {
	return updateIfStatus(ctx, i.coll(), "inspection", id, string(expect), set)
}

// DueForReminder finds assigned, still open inspections scheduled in [from, to)
// that have not been reminded yet.
func (i *inspectionDatabase) DueForReminder(ctx context.Context, from, to time.Time) ([]models.Inspection, error) {
	query := bson.M{
		"status":         bson.M{"$in": bson.A{models.InspectionScheduled, models.InspectionRescheduled}},
		"scheduledDate":  bson.M{"$gte": from, "$lt": to},
		"assignedTo":     bson.M{"$exists": true},
		"reminderSentAt": nil,
	}
	out := []models.Inspection{}
	err := findAll(ctx, i.coll(), query, &out, options.Find().SetLimit(500))
	return out, err
}

func (i *inspectionDatabase) MarkReminded(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := i.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"reminderSentAt": at}})
	return err
}

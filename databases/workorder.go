package databases

// go generate: mockery --name WorkOrderDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/models"
)

const workOrderName = "workorders"

// WorkOrderDatabase contains the methods to use with the work order database
type WorkOrderDatabase interface {
	Insert(ctx context.Context, wo models.WorkOrder) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.WorkOrder, error)
	List(ctx context.Context, filter TaskFilter, page Page) ([]models.WorkOrder, int64, error)
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.WorkOrderStatus, set bson.M) error
}

type workOrderDatabase struct {
	db DatabaseHelper
}

// NewWorkOrderDatabase initializes a new instance of work order database with the provided db connection
func NewWorkOrderDatabase(db DatabaseHelper) WorkOrderDatabase {
	return &workOrderDatabase{
		db: db,
	}
}

func (w *workOrderDatabase) coll() CollectionHelper {
	return w.db.Collection(workOrderName)
}

func (w *workOrderDatabase) Insert(ctx context.Context, wo models.WorkOrder) error {
	_, err := w.coll().InsertOne(ctx, wo)
	return err
}

func (w *workOrderDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.WorkOrder, error) {
	wo := &models.WorkOrder{}
	if err := findOneByID(ctx, w.coll(), "work order", id, wo); err != nil {
		return nil, err
	}
	return wo, nil
}

func (w *workOrderDatabase) List(ctx context.Context, filter TaskFilter, page Page) ([]models.WorkOrder, int64, error) {
	query := filter.bson("createdBy")
	total, err := w.coll().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	out := []models.WorkOrder{}
	if err := findAll(ctx, w.coll(), query, &out, opts); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (w *workOrderDatabase) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.WorkOrderStatus, set bson.M) error {
	return updateIfStatus(ctx, w.coll(), "work order", id, string(expect), set)
}

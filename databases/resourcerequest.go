package databases

// go generate: mockery --name ResourceRequestDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/models"
)

const resourceRequestName = "resourcerequests"

// ResourceRequestDatabase contains the methods to use with the resource request database
type ResourceRequestDatabase interface {
	Insert(ctx context.Context, rr models.ResourceRequest) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.ResourceRequest, error)
	List(ctx context.Context, filter TaskFilter, page Page) ([]models.ResourceRequest, int64, error)
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.ResourceRequestStatus, set bson.M) error
}

type resourceRequestDatabase struct {
	db DatabaseHelper
}

// NewResourceRequestDatabase initializes a new instance of resource request database with the provided db connection
func NewResourceRequestDatabase(db DatabaseHelper) ResourceRequestDatabase {
	return &resourceRequestDatabase{
		db: db,
	}
}

func (r *resourceRequestDatabase) coll() CollectionHelper {
	return r.db.Collection(resourceRequestName)
}

func (r *resourceRequestDatabase) Insert(ctx context.Context, rr models.ResourceRequest) error {
	_, err := r.coll().InsertOne(ctx, rr)
	return err
}

func (r *resourceRequestDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.ResourceRequest, error) {
	rr := &models.ResourceRequest{}
	if err := findOneByID(ctx, r.coll(), "resource request", id, rr); err != nil {
		return nil, err
	}
	return rr, nil
}

func (r *resourceRequestDatabase) List(ctx context.Context, filter TaskFilter, page Page) ([]models.ResourceRequest, int64, error) {
	query := filter.bson("requestedBy")
	total, err := r.coll().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	out := []models.ResourceRequest{}
	if err := findAll(ctx, r.coll(), query, &out, opts); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *resourceRequestDatabase) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.ResourceRequestStatus, set bson.M) error {
	return updateIfStatus(ctx, r.coll(), "resource request", id, string(expect), set)
}

package databases

// go generate: mockery --name IssueDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
)

const issueName = "issues"

// IssueFilter narrows issue listings. Zero values match everything.
type IssueFilter struct {
	Status     models.IssueStatus
	Category   models.IssueCategory
	Priority   models.Priority
	DistrictID string
	ReportedBy *primitive.ObjectID
}

// BoundingBox is a lat/lng rectangle
type BoundingBox struct {
	MinLat, MaxLat, MinLng, MaxLng float64
}

// IssueDatabase contains the methods to use with the issue database
type IssueDatabase interface {
	Insert(ctx context.Context, issue models.Issue) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Issue, error)
	List(ctx context.Context, filter IssueFilter, page Page) ([]models.Issue, int64, error)
	FindInBox(ctx context.Context, box BoundingBox, limit int) ([]models.Issue, error)
	UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.IssueStatus, set bson.M) error
	ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (models.UpvoteResult, error)
	AddComment(ctx context.Context, id primitive.ObjectID, comment models.Comment) error
	CountByDistrict(ctx context.Context, districtID string, status models.IssueStatus) (int64, error)
}

type issueDatabase struct {
	db DatabaseHelper
}

// NewIssueDatabase initializes a new instance of issue database with the provided db connection
func NewIssueDatabase(db DatabaseHelper) IssueDatabase {
	return &issueDatabase{
		db: db,
	}
}

func (i *issueDatabase) coll() CollectionHelper {
	return i.db.Collection(issueName)
}

func (i *issueDatabase) Insert(ctx context.Context, issue models.Issue) error {
	_, err := i.coll().InsertOne(ctx, issue)
	return err
}

func (i *issueDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Issue, error) {
	issue := &models.Issue{}
	if err := findOneByID(ctx, i.coll(), "issue", id, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

func (i *issueDatabase) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Issue, error) {
	out := make(map[primitive.ObjectID]models.Issue, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var issues []models.Issue
	if err := findAll(ctx, i.coll(), bson.M{"_id": bson.M{"$in": ids}}, &issues); err != nil {
		return nil, err
	}
	for _, is := range issues {
		out[is.ID] = is
	}
	return out, nil
}

func (f IssueFilter) bson() bson.M {
	m := bson.M{}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Category != "" {
		m["category"] = f.Category
	}
	if f.Priority != "" {
		m["priority"] = f.Priority
	}
	if f.DistrictID != "" {
		m["districtId"] = f.DistrictID
	}
	if f.ReportedBy != nil {
		m["reportedBy"] = *f.ReportedBy
	}
	return m
}

func (i *issueDatabase) List(ctx context.Context, filter IssueFilter, page Page) ([]models.Issue, int64, error) {
	query := filter.bson()
	total, err := i.coll().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	issues := []models.Issue{}
	if err := findAll(ctx, i.coll(), query, &issues, opts); err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (i *issueDatabase) FindInBox(ctx context.Context, box BoundingBox, limit int) ([]models.Issue, error) {
	query := bson.M{
		"location.lat": bson.M{"$gte": box.MinLat, "$lte": box.MaxLat},
		"location.lng": bson.M{"$gte": box.MinLng, "$lte": box.MaxLng},
	}
	issues := []models.Issue{}
	err := findAll(ctx, i.coll(), query, &issues, options.Find().SetLimit(int64(limit)))
	return issues, err
}

func (i *issueDatabase) UpdateIfStatus(ctx context.Context, id primitive.ObjectID, expect models.IssueStatus, set bson.M) error {
	return updateIfStatus(ctx, i.coll(), "issue", id, string(expect), set)
}

// ToggleUpvote adds user to the upvote set if absent, otherwise removes it.
// Both branches are single conditional updates so concurrent voters never
// lose each other's votes.
func (i *issueDatabase) ToggleUpvote(ctx context.Context, id, user primitive.ObjectID) (models.UpvoteResult, error) {
	now := time.Now().UTC()
	res, err := i.coll().UpdateOne(ctx,
		bson.M{"_id": id, "upvotes": bson.M{"$ne": user}},
		bson.M{"$addToSet": bson.M{"upvotes": user}, "$set": bson.M{"updatedAt": now}},
	)
	if err != nil {
		return models.UpvoteResult{}, err
	}
	upvoted := res.ModifiedCount > 0
	if !upvoted {
		res, err = i.coll().UpdateOne(ctx,
			bson.M{"_id": id, "upvotes": user},
			bson.M{"$pull": bson.M{"upvotes": user}, "$set": bson.M{"updatedAt": now}},
		)
		if err != nil {
			return models.UpvoteResult{}, err
		}
		if res.MatchedCount == 0 {
			return models.UpvoteResult{}, apierrors.NotFound("issue", id.Hex())
		}
	}

	cursor, err := i.coll().Aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{"_id": id}},
		bson.M{"$project": bson.M{"count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}}}},
	})
	if err != nil {
		return models.UpvoteResult{}, err
	}
	var rows []struct {
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return models.UpvoteResult{}, err
	}
	count := 0
	if len(rows) > 0 {
		count = rows[0].Count
	}
	return models.UpvoteResult{Upvoted: upvoted, Count: count}, nil
}

func (i *issueDatabase) AddComment(ctx context.Context, id primitive.ObjectID, comment models.Comment) error {
	res, err := i.coll().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"comments": comment}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apierrors.NotFound("issue", id.Hex())
	}
	return nil
}

func (i *issueDatabase) CountByDistrict(ctx context.Context, districtID string, status models.IssueStatus) (int64, error) {
	query := bson.M{"districtId": districtID}
	if status != "" {
		query["status"] = status
	}
	return i.coll().CountDocuments(ctx, query)
}

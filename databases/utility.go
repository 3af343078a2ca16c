package databases

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
)

// DefaultLimit and MaxLimit bound page sizes
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Page selects a 1-based page of results
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps page and limit to sane values
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Skip is the number of documents before the page
func (p Page) Skip() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(p Page) *mongoPaginate {
	p = p.Normalize()
	return &mongoPaginate{
		limit: int64(p.Limit),
		page:  int64(p.Page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.page*mp.limit - mp.limit
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

// findOneByID decodes the document with the given id into v
func findOneByID(ctx context.Context, coll CollectionHelper, resource string, id primitive.ObjectID, v interface{}) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(v)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apierrors.NotFound(resource, id.Hex())
	}
	return err
}

// findAll decodes every document matching filter into results
func findAll(ctx context.Context, coll CollectionHelper, filter interface{}, results interface{}, opts ...*options.FindOptions) error {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return err
	}
	return cursor.All(ctx, results)
}

// updateIfStatus applies set to the document only while its status still
// equals expect. A miss is reported as NotFound when the document is gone and
// Conflict when its status moved on.
func updateIfStatus(ctx context.Context, coll CollectionHelper, resource string, id primitive.ObjectID, expect string, set bson.M) error {
	if set == nil {
		set = bson.M{}
	}
	set["updatedAt"] = time.Now().UTC()

	res, err := coll.UpdateOne(ctx, bson.M{"_id": id, "status": expect}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	return missReason(ctx, coll, resource, id, "%s %s is no longer %s", resource, id.Hex(), expect)
}

// missReason decides why a conditional update matched nothing
func missReason(ctx context.Context, coll CollectionHelper, resource string, id primitive.ObjectID, format string, args ...interface{}) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return apierrors.NotFound(resource, id.Hex())
	}
	return apierrors.Conflict(format, args...)
}

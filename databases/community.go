package databases

// go generate: mockery --name CommunityDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
)

const communityName = "communities"

// Community stats counters that may be incremented
const (
	StatIssuesReported = "stats.totalIssuesReported"
	StatIssuesResolved = "stats.totalIssuesResolved"
)

// CommunityDatabase contains the methods to use with the community database
type CommunityDatabase interface {
	FindOrCreate(ctx context.Context, seed models.Community) (*models.Community, error)
	FindByCode(ctx context.Context, code string) (*models.Community, error)
	List(ctx context.Context, state string, page Page) ([]models.Community, error)
	AddMember(ctx context.Context, code string, member models.Member) (bool, error)
	RemoveMember(ctx context.Context, code string, user primitive.ObjectID) (bool, error)
	SetMemberRole(ctx context.Context, code string, user primitive.ObjectID, role models.MemberRole) (bool, error)
	AppendMessage(ctx context.Context, code string, msg models.Message) error
	IncrementStat(ctx context.Context, code, stat string, delta int) error
	SetStats(ctx context.Context, code string, stats models.CommunityStats) error
}

type communityDatabase struct {
	db DatabaseHelper
}

// NewCommunityDatabase initializes a new instance of community database with the provided db connection
func NewCommunityDatabase(db DatabaseHelper) CommunityDatabase {
	return &communityDatabase{
		db: db,
	}
}

func (c *communityDatabase) coll() CollectionHelper {
	return c.db.Collection(communityName)
}

// FindOrCreate upserts on districtCode so concurrent callers converge on one
// document. Fields of seed only apply when the community is new.
func (c *communityDatabase) FindOrCreate(ctx context.Context, seed models.Community) (*models.Community, error) {
	_, err := c.coll().UpdateOne(ctx,
		bson.M{"districtCode": seed.DistrictCode},
		bson.M{"$setOnInsert": seed},
		options.Update().SetUpsert(true),
	)
	// a racing upsert can lose on the unique index; the winner's document is what we want
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	return c.FindByCode(ctx, seed.DistrictCode)
}

func (c *communityDatabase) FindByCode(ctx context.Context, code string) (*models.Community, error) {
	community := &models.Community{}
	err := c.coll().FindOne(ctx, bson.M{"districtCode": code}).Decode(community)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apierrors.NotFound("community", code)
	}
	if err != nil {
		return nil, err
	}
	return community, nil
}

func (c *communityDatabase) List(ctx context.Context, state string, page Page) ([]models.Community, error) {
	query := bson.M{"settings.isPublic": true}
	if state != "" {
		query["state"] = state
	}
	opts := newMongoPaginate(page).getPaginatedOpts()
	opts.SetProjection(bson.M{"messages": 0})
	opts.SetSort(bson.D{{Key: "stats.totalMembers", Value: -1}, {Key: "districtCode", Value: 1}})
	communities := []models.Community{}
	err := findAll(ctx, c.coll(), query, &communities, opts)
	return communities, err
}

// AddMember appends member unless the user is already present. It reports
// whether the membership changed.
func (c *communityDatabase) AddMember(ctx context.Context, code string, member models.Member) (bool, error) {
	res, err := c.coll().UpdateOne(ctx,
		bson.M{"districtCode": code, "members.user": bson.M{"$ne": member.User}},
		bson.M{
			"$push": bson.M{"members": member},
			"$inc":  bson.M{"stats.totalMembers": 1},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, c.exists(ctx, code)
}

// RemoveMember pulls the user if present and reports whether membership changed
func (c *communityDatabase) RemoveMember(ctx context.Context, code string, user primitive.ObjectID) (bool, error) {
	res, err := c.coll().UpdateOne(ctx,
		bson.M{"districtCode": code, "members.user": user},
		bson.M{
			"$pull": bson.M{"members": bson.M{"user": user}},
			"$inc":  bson.M{"stats.totalMembers": -1},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, c.exists(ctx, code)
}

// SetMemberRole changes the role of an existing member in place. It returns
// false when the user is not a member.
func (c *communityDatabase) SetMemberRole(ctx context.Context, code string, user primitive.ObjectID, role models.MemberRole) (bool, error) {
	res, err := c.coll().UpdateOne(ctx,
		bson.M{"districtCode": code, "members.user": user},
		bson.M{"$set": bson.M{"members.$.role": role, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	return false, c.exists(ctx, code)
}

// AppendMessageUpdate is the update document that appends msg and keeps
// only the newest MaxCommunityMessages entries.
func AppendMessageUpdate(msg models.Message) bson.M {
	return bson.M{
		"$push": bson.M{"messages": bson.M{
			"$each":  bson.A{msg},
			"$slice": -models.MaxCommunityMessages,
		}},
		"$set": bson.M{"updatedAt": msg.CreatedAt},
	}
}

func (c *communityDatabase) AppendMessage(ctx context.Context, code string, msg models.Message) error {
	res, err := c.coll().UpdateOne(ctx, bson.M{"districtCode": code}, AppendMessageUpdate(msg))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apierrors.NotFound("community", code)
	}
	return nil
}

// IncrementStat bumps a stats counter. Unknown districts are ignored.
func (c *communityDatabase) IncrementStat(ctx context.Context, code, stat string, delta int) error {
	_, err := c.coll().UpdateOne(ctx, bson.M{"districtCode": code}, bson.M{"$inc": bson.M{stat: delta}})
	return err
}

func (c *communityDatabase) SetStats(ctx context.Context, code string, stats models.CommunityStats) error {
	_, err := c.coll().UpdateOne(ctx, bson.M{"districtCode": code}, bson.M{"$set": bson.M{"stats": stats}})
	return err
}

func (c *communityDatabase) exists(ctx context.Context, code string) error {
	n, err := c.coll().CountDocuments(ctx, bson.M{"districtCode": code})
	if err != nil {
		return err
	}
	if n == 0 {
		return apierrors.NotFound("community", code)
	}
	return nil
}

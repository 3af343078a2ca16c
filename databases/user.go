package databases

// go generate: mockery --name UserDatabase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
)

const userName = "users"

// UserDatabase contains the methods to use with the user database
type UserDatabase interface {
	Insert(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
	SetDistrict(ctx context.Context, id primitive.ObjectID, districtID string) error
}

type userDatabase struct {
	db DatabaseHelper
}

// NewUserDatabase initializes a new instance of user database with the provided db connection
func NewUserDatabase(db DatabaseHelper) UserDatabase {
	return &userDatabase{
		db: db,
	}
}

func (u *userDatabase) coll() CollectionHelper {
	return u.db.Collection(userName)
}

func (u *userDatabase) Insert(ctx context.Context, user models.User) error {
	_, err := u.coll().InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.Conflict("email %s is already registered", user.Email)
	}
	return err
}

func (u *userDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user := &models.User{}
	if err := findOneByID(ctx, u.coll(), "user", id, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userDatabase) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := u.coll().FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apierrors.NotFound("user", "")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (u *userDatabase) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.User
	if err := findAll(ctx, u.coll(), bson.M{"_id": bson.M{"$in": ids}}, &users); err != nil {
		return nil, err
	}
	for _, us := range users {
		out[us.ID] = us
	}
	return out, nil
}

func (u *userDatabase) SetDistrict(ctx context.Context, id primitive.ObjectID, districtID string) error {
	res, err := u.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"districtId": districtID,
		"updatedAt":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apierrors.NotFound("user", id.Hex())
	}
	return nil
}

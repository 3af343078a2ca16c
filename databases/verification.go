package databases

// go generate: mockery --name VerificationDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
)

const verificationName = "communityverifications"

// VerificationDatabase contains the methods to use with the community verification database
type VerificationDatabase interface {
	Insert(ctx context.Context, v models.CommunityVerification) error
	Tally(ctx context.Context, issueID primitive.ObjectID) (models.VerificationTally, error)
}

type verificationDatabase struct {
	db DatabaseHelper
}

// NewVerificationDatabase initializes a new instance of verification database with the provided db connection
func NewVerificationDatabase(db DatabaseHelper) VerificationDatabase {
	return &verificationDatabase{
		db: db,
	}
}

func (v *verificationDatabase) coll() CollectionHelper {
	return v.db.Collection(verificationName)
}

// Insert relies on the unique (issue, user) index to reject repeat votes
func (v *verificationDatabase) Insert(ctx context.Context, cv models.CommunityVerification) error {
	_, err := v.coll().InsertOne(ctx, cv)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.Conflict("user has already verified issue %s", cv.Issue.Hex())
	}
	return err
}

func (v *verificationDatabase) Tally(ctx context.Context, issueID primitive.ObjectID) (models.VerificationTally, error) {
	correct, err := v.coll().CountDocuments(ctx, bson.M{"issue": issueID, "verdict": models.VerdictCorrect})
	if err != nil {
		return models.VerificationTally{}, err
	}
	incorrect, err := v.coll().CountDocuments(ctx, bson.M{"issue": issueID, "verdict": models.VerdictIncorrect})
	if err != nil {
		return models.VerificationTally{}, err
	}
	return models.NewVerificationTally(int(correct), int(incorrect)), nil
}

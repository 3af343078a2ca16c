package databases_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/databases/mocks"
	"github.com/citizenvoice/citizenvoice-api/models"
)

func TestNewIssueDatabase(t *testing.T) {
	_ = os.Setenv("DB_URI", "mongodb://127.0.0.1:27017")
	_ = os.Setenv("DB_NAME", "test")
	conf := config.New()

	dbClient, err := databases.NewClient(conf)
	assert.NoError(t, err)

	db := databases.NewDatabase(conf, dbClient)

	issueDB := databases.NewIssueDatabase(db)

	assert.NotEmpty(t, issueDB)
}

func TestIssueDatabase_FindByID(t *testing.T) {
	var dbHelper databases.DatabaseHelper
	var collectionHelper databases.CollectionHelper
	var srHelperErr databases.SingleResultHelper
	var srHelperMissing databases.SingleResultHelper
	var srHelperCorrect databases.SingleResultHelper

	dbHelper = &mocks.DatabaseHelper{}
	collectionHelper = &mocks.CollectionHelper{}
	srHelperErr = &mocks.SingleResultHelper{}
	srHelperMissing = &mocks.SingleResultHelper{}
	srHelperCorrect = &mocks.SingleResultHelper{}

	errID, missingID, okID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	srHelperErr.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(errors.New("mocked-error"))

	srHelperMissing.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(mongo.ErrNoDocuments)

	srHelperCorrect.(*mocks.SingleResultHelper).
		On("Decode", mock.Anything).
		Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*models.Issue)
		arg.ID = okID
		arg.Status = models.IssueReported
	})

	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": errID}).
		Return(srHelperErr)
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": missingID}).
		Return(srHelperMissing)
	collectionHelper.(*mocks.CollectionHelper).
		On("FindOne", context.Background(), bson.M{"_id": okID}).
		Return(srHelperCorrect)

	dbHelper.(*mocks.DatabaseHelper).
		On("Collection", "issues").Return(collectionHelper)

	issueDba := databases.NewIssueDatabase(dbHelper)

	issue, err := issueDba.FindByID(context.Background(), errID)
	assert.Nil(t, issue)
	assert.EqualError(t, err, "mocked-error")

	issue, err = issueDba.FindByID(context.Background(), missingID)
	assert.Nil(t, issue)
	assert.True(t, apierrors.IsNotFound(err))

	issue, err = issueDba.FindByID(context.Background(), okID)
	assert.NoError(t, err)
	assert.Equal(t, okID, issue.ID)
	assert.Equal(t, models.IssueReported, issue.Status)
}

func TestIssueDatabase_UpdateIfStatus(t *testing.T) {
	id := primitive.NewObjectID()
	filter := bson.M{"_id": id, "status": models.IssueReported}

	tests := []struct {
		name    string
		matched int64
		count   int64
		check   func(t *testing.T, err error)
	}{
		{"applied", 1, 0, func(t *testing.T, err error) { assert.NoError(t, err) }},
		{"status moved on", 0, 1, func(t *testing.T, err error) { assert.True(t, apierrors.IsConflict(err)) }},
		{"gone", 0, 0, func(t *testing.T, err error) { assert.True(t, apierrors.IsNotFound(err)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mocks.DatabaseHelper{}
			conn := &mocks.CollectionHelper{}
			db.On("Collection", "issues").Return(conn)
			conn.On("UpdateOne", mock.Anything, filter, mock.Anything).
				Return(&mongo.UpdateResult{MatchedCount: tt.matched, ModifiedCount: tt.matched}, nil)
			conn.On("CountDocuments", mock.Anything, bson.M{"_id": id}).Return(tt.count, nil)

			err := databases.NewIssueDatabase(db).UpdateIfStatus(context.Background(), id, models.IssueReported, bson.M{"status": models.IssueAcknowledged})
			tt.check(t, err)
		})
	}
}

func TestIssueDatabase_UpdateIfStatusSetsStatusAndTimestamp(t *testing.T) {
	id := primitive.NewObjectID()
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	db.On("Collection", "issues").Return(conn)
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil).
		Run(func(args mock.Arguments) {
			set := args.Get(2).(bson.M)["$set"].(bson.M)
			assert.Equal(t, models.IssueResolved, set["status"])
			assert.Contains(t, set, "updatedAt")
		})

	err := databases.NewIssueDatabase(db).UpdateIfStatus(context.Background(), id, models.IssueInProgress, bson.M{"status": models.IssueResolved})
	assert.NoError(t, err)
}

type countRow = struct {
	Count int `bson:"count"`
}

func upvoteMocks(t *testing.T, addModified, pullMatched int64, count int) *mocks.DatabaseHelper {
	t.Helper()
	db := &mocks.DatabaseHelper{}
	conn := &mocks.CollectionHelper{}
	cursor := &mocks.CursorHelper{}
	db.On("Collection", "issues").Return(conn)

	conn.On("UpdateOne", mock.Anything, mock.MatchedBy(func(f bson.M) bool {
		_, ok := f["upvotes"].(bson.M)
		return ok
	}), mock.Anything).Return(&mongo.UpdateResult{MatchedCount: addModified, ModifiedCount: addModified}, nil)
	conn.On("UpdateOne", mock.Anything, mock.MatchedBy(func(f bson.M) bool {
		_, ok := f["upvotes"].(primitive.ObjectID)
		return ok
	}), mock.Anything).Return(&mongo.UpdateResult{MatchedCount: pullMatched, ModifiedCount: pullMatched}, nil)
	conn.On("Aggregate", mock.Anything, mock.Anything).Return(cursor, nil)
	cursor.On("All", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		rows := args.Get(1).(*[]countRow)
		*rows = append(*rows, countRow{Count: count})
	})
	return db
}

func TestIssueDatabase_ToggleUpvoteAdds(t *testing.T) {
	db := upvoteMocks(t, 1, 0, 1)

	res, err := databases.NewIssueDatabase(db).ToggleUpvote(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.NoError(t, err)
	assert.True(t, res.Upvoted)
	assert.Equal(t, 1, res.Count)
}

func TestIssueDatabase_ToggleUpvoteRemoves(t *testing.T) {
	db := upvoteMocks(t, 0, 1, 0)

	res, err := databases.NewIssueDatabase(db).ToggleUpvote(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.NoError(t, err)
	assert.False(t, res.Upvoted)
	assert.Equal(t, 0, res.Count)
}

func TestIssueDatabase_ToggleUpvoteMissingIssue(t *testing.T) {
	db := upvoteMocks(t, 0, 0, 0)

	_, err := databases.NewIssueDatabase(db).ToggleUpvote(context.Background(), primitive.NewObjectID(), primitive.NewObjectID())
	assert.True(t, apierrors.IsNotFound(err))
}

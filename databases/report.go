package databases

// go generate: mockery --name ReportDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citizenvoice/citizenvoice-api/models"
)

const reportName = "reports"

// ReportDatabase contains the methods to use with the report database
type ReportDatabase interface {
	Insert(ctx context.Context, report models.Report) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error)
	ListPending(ctx context.Context, reportType models.ReportType) ([]models.Report, error)
	ListByIssue(ctx context.Context, issueID primitive.ObjectID) ([]models.Report, error)
	CountPending(ctx context.Context, issueID primitive.ObjectID, reportType models.ReportType) (int64, error)
	Decide(ctx context.Context, id primitive.ObjectID, status models.ReportStatus, reviewer primitive.ObjectID, remarks string, at time.Time) error
}

type reportDatabase struct {
	db DatabaseHelper
}

// NewReportDatabase initializes a new instance of report database with the provided db connection
func NewReportDatabase(db DatabaseHelper) ReportDatabase {
	return &reportDatabase{
		db: db,
	}
}

func (r *reportDatabase) coll() CollectionHelper {
	return r.db.Collection(reportName)
}

func (r *reportDatabase) Insert(ctx context.Context, report models.Report) error {
	_, err := r.coll().InsertOne(ctx, report)
	return err
}

func (r *reportDatabase) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	report := &models.Report{}
	if err := findOneByID(ctx, r.coll(), "report", id, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *reportDatabase) ListPending(ctx context.Context, reportType models.ReportType) ([]models.Report, error) {
	query := bson.M{"status": models.ReportPending}
	if reportType != "" {
		query["reportType"] = reportType
	}
	reports := []models.Report{}
	err := findAll(ctx, r.coll(), query, &reports, options.Find().SetSort(bson.D{{Key: "submittedAt", Value: 1}}))
	return reports, err
}

func (r *reportDatabase) ListByIssue(ctx context.Context, issueID primitive.ObjectID) ([]models.Report, error) {
	reports := []models.Report{}
	err := findAll(ctx, r.coll(), bson.M{"issue": issueID}, &reports, options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}}))
	return reports, err
}

func (r *reportDatabase) CountPending(ctx context.Context, issueID primitive.ObjectID, reportType models.ReportType) (int64, error) {
	return r.coll().CountDocuments(ctx, bson.M{
		"issue":      issueID,
		"reportType": reportType,
		"status":     models.ReportPending,
	})
}

// Decide closes a pending report. A report that was already decided yields a
// Conflict error.
func (r *reportDatabase) Decide(ctx context.Context, id primitive.ObjectID, status models.ReportStatus, reviewer primitive.ObjectID, remarks string, at time.Time) error {
	return updateIfStatus(ctx, r.coll(), "report", id, string(models.ReportPending), bson.M{
		"status":        status,
		"reviewedBy":    reviewer,
		"reviewedAt":    at,
		"reviewRemarks": remarks,
	})
}

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// Report handles field report submission and the admin review queue
type Report struct {
	Service *services.ReviewService
}

// SubmitReportHandler files a verification or resolution report against an issue
func (rp Report) SubmitReportHandler(w http.ResponseWriter, r *http.Request) {
	issueID, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	var in services.SubmitReportInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid report", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := rp.Service.Submit(ctx, caller(r).UserID, issueID, in)
	if err != nil {
		writeError(w, "failed to submit report", err)
		return
	}
	zap.S().Infow("report submitted", "reportId", report.ID.Hex(), "issueId", issueID.Hex(), "type", report.ReportType)
	writeJSON(w, http.StatusCreated, report)
}

// IssueReportsHandler lists every report filed against an issue
func (rp Report) IssueReportsHandler(w http.ResponseWriter, r *http.Request) {
	issueID, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid issue id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := rp.Service.History(ctx, issueID)
	if err != nil {
		writeError(w, "failed to list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// PendingReportsHandler returns the review queue, optionally for one ?type=
func (rp Report) PendingReportsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	items, err := rp.Service.Queue(ctx, models.ReportType(r.URL.Query().Get("type")))
	if err != nil {
		writeError(w, "failed to load review queue", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// ReportByIDHandler returns a report together with its issue
func (rp Report) ReportByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid report id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	item, err := rp.Service.Get(ctx, id)
	if err != nil {
		writeError(w, "failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ReviewReportHandler approves or rejects a pending report
func (rp Report) ReviewReportHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid report id", err)
		return
	}
	var in services.DecisionInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid decision", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := rp.Service.Decide(ctx, caller(r).UserID, id, in)
	if err != nil {
		writeError(w, "failed to review report", err)
		return
	}
	zap.S().Infow("report reviewed",
		"reportId", id.Hex(),
		"decision", in.Decision,
		"issueStatus", res.Issue.Status,
		"pointsAwarded", res.PointsAwarded,
	)
	writeJSON(w, http.StatusOK, res)
}

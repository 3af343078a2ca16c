package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

func (ta *testApp) submitReport(t *testing.T, token string, issueID primitive.ObjectID, body map[string]interface{}) *models.Report {
	t.Helper()
	rr := ta.do(t, "POST", "/api/v1/issues/"+issueID.Hex()+"/reports", token, body)
	checkResponseCode(t, http.StatusCreated, rr)
	var report models.Report
	decodeBody(t, rr, &report)
	return &report
}

func (ta *testApp) review(t *testing.T, token string, reportID primitive.ObjectID, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return ta.do(t, "POST", "/api/v1/officials/reports/"+reportID.Hex()+"/review", token, body)
}

var verifiedReport = map[string]interface{}{
	"reportType": "verification",
	"outcome":    "verified",
	"rootCause":  "Water main leak eroded the road base",
	"evidence":   []string{"https://res.cloudinary.com/citizenvoice/image/upload/site.jpg"},
}

var resolutionReport = map[string]interface{}{
	"reportType":    "resolution",
	"workSummary":   "Patched and resurfaced",
	"stepsTaken":    "Cut, filled, rolled",
	"resourcesUsed": "2 tonnes asphalt",
	"proof":         []string{"https://res.cloudinary.com/citizenvoice/image/upload/after.jpg"},
}

func TestReviewWorkflow(t *testing.T) {
	ta := newTestApp(t)
	reporter, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	officer, officerToken := ta.signIn(t, "Asha", "asha@city.gov", models.UserOfficial)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)
	ctx := context.Background()

	rr := ta.do(t, "POST", "/api/v1/communities/district", citizen, map[string]string{"state": "Maharashtra", "district": "Pune"})
	checkResponseCode(t, http.StatusOK, rr)

	issue := ta.createIssue(t, citizen, 18.5204, 73.8567)
	reportsPath := "/api/v1/issues/" + issue.ID.Hex() + "/reports"

	// citizens cannot file field reports
	rr = ta.do(t, "POST", reportsPath, citizen, verifiedReport)
	checkResponseCode(t, http.StatusForbidden, rr)

	// a reported issue has not been acknowledged yet
	rr = ta.do(t, "POST", reportsPath, officerToken, verifiedReport)
	checkResponseCode(t, http.StatusConflict, rr)

	rr = ta.do(t, "POST", "/api/v1/officials/issues/"+issue.ID.Hex()+"/assign", admin, map[string]string{"assigneeId": officer.ID.Hex()})
	checkResponseCode(t, http.StatusOK, rr)

	rr = ta.do(t, "POST", reportsPath, officerToken, map[string]interface{}{"reportType": "verification", "outcome": "verified"})
	checkResponseCode(t, http.StatusBadRequest, rr)
	assert.Equal(t, "rootCause", errorBody(t, rr).Fields[0].Field)

	verification := ta.submitReport(t, officerToken, issue.ID, verifiedReport)
	assert.Equal(t, models.ReportPending, verification.Status)
	assert.Equal(t, officer.ID, verification.SubmittedBy)

	rr = ta.do(t, "POST", reportsPath, officerToken, verifiedReport)
	checkResponseCode(t, http.StatusConflict, rr)

	// only admins see the queue and decide
	rr = ta.do(t, "GET", "/api/v1/officials/reports/pending", officerToken, nil)
	checkResponseCode(t, http.StatusForbidden, rr)
	rr = ta.review(t, officerToken, verification.ID, map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusForbidden, rr)

	rr = ta.do(t, "GET", "/api/v1/officials/reports/pending?type=verification", admin, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var queue []models.ReviewQueueItem
	decodeBody(t, rr, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, verification.ID, queue[0].Report.ID)
	require.NotNil(t, queue[0].Issue)
	assert.Equal(t, issue.ID, queue[0].Issue.ID)

	rr = ta.do(t, "GET", "/api/v1/officials/reports/pending?type=audit", admin, nil)
	checkResponseCode(t, http.StatusBadRequest, rr)

	rr = ta.review(t, admin, verification.ID, map[string]interface{}{"decision": "reject"})
	checkResponseCode(t, http.StatusBadRequest, rr)
	assert.Equal(t, "remarks", errorBody(t, rr).Fields[0].Field)

	rr = ta.review(t, admin, verification.ID, map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusOK, rr)
	var decided services.DecisionResult
	decodeBody(t, rr, &decided)
	assert.Equal(t, models.ReportApproved, decided.Report.Status)
	assert.Equal(t, models.IssueInProgress, decided.Issue.Status)
	assert.Zero(t, decided.PointsAwarded)

	rr = ta.review(t, admin, verification.ID, map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusConflict, rr)

	// resolution
	rr = ta.do(t, "POST", reportsPath, officerToken, map[string]interface{}{"reportType": "resolution", "workSummary": "done"})
	checkResponseCode(t, http.StatusBadRequest, rr)

	resolution := ta.submitReport(t, officerToken, issue.ID, resolutionReport)

	rr = ta.review(t, admin, resolution.ID, map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusBadRequest, rr)
	assert.Equal(t, "confirmed", errorBody(t, rr).Fields[0].Field)

	rr = ta.review(t, admin, resolution.ID, map[string]interface{}{"decision": "approve", "confirmed": true, "remarks": "Looks good"})
	checkResponseCode(t, http.StatusOK, rr)
	decodeBody(t, rr, &decided)
	assert.Equal(t, models.IssueResolved, decided.Issue.Status)
	assert.NotNil(t, decided.Issue.ResolvedAt)
	assert.Equal(t, models.EventPoints[models.EventIssueVerifiedResolved], decided.PointsAwarded)
	assert.Equal(t, "Looks good", decided.Report.ReviewRemarks)

	rr = ta.do(t, "GET", "/api/v1/issues/"+issue.ID.Hex(), citizen, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var stored models.Issue
	decodeBody(t, rr, &stored)
	assert.Equal(t, models.IssueResolved, stored.Status)

	rr = ta.do(t, "GET", reportsPath, officerToken, nil)
	checkResponseCode(t, http.StatusOK, rr)
	var history []models.Report
	decodeBody(t, rr, &history)
	assert.Len(t, history, 2)

	rr = ta.do(t, "GET", "/api/v1/officials/reports/"+resolution.ID.Hex(), officerToken, nil)
	checkResponseCode(t, http.StatusOK, rr)

	total, err := ta.store.Events().TotalForUser(ctx, officer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.EventPoints[models.EventIssueVerifiedResolved], total)

	community, err := ta.store.Communities().FindByCode(ctx, "MAH-PUNE")
	require.NoError(t, err)
	assert.Equal(t, 1, community.Stats.TotalIssuesReported)
	assert.Equal(t, 1, community.Stats.TotalIssuesResolved)

	require.NotEmpty(t, ta.mailer.sent)
	assert.Equal(t, reporter.Email, ta.mailer.sent[len(ta.mailer.sent)-1].to)

	notes, err := ta.store.Notifications().ListForUser(ctx, reporter.ID, false, pageOne)
	require.NoError(t, err)
	types := map[models.NotificationType]bool{}
	for _, n := range notes {
		types[n.Type] = true
	}
	assert.True(t, types[models.NotificationIssueResolved])
	assert.True(t, types[models.NotificationIssueVerification])
}

func TestRejectedReportLeavesIssueUnchanged(t *testing.T) {
	ta := newTestApp(t)
	_, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	officer, officerToken := ta.signIn(t, "Asha", "asha@city.gov", models.UserOfficial)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)

	issue := ta.createIssue(t, citizen, 18.5, 73.8)
	rr := ta.do(t, "POST", "/api/v1/officials/issues/"+issue.ID.Hex()+"/assign", admin, map[string]string{"assigneeId": officer.ID.Hex()})
	checkResponseCode(t, http.StatusOK, rr)
	report := ta.submitReport(t, officerToken, issue.ID, verifiedReport)

	rr = ta.review(t, admin, report.ID, map[string]interface{}{"decision": "reject", "remarks": "Photos are blurry"})
	checkResponseCode(t, http.StatusOK, rr)
	var decided services.DecisionResult
	decodeBody(t, rr, &decided)
	assert.Equal(t, models.ReportRejected, decided.Report.Status)
	assert.Equal(t, models.IssueAcknowledged, decided.Issue.Status)

	// a fresh report can be filed once the last one is decided
	ta.submitReport(t, officerToken, issue.ID, verifiedReport)
}

func TestNotVerifiedReportClosesIssue(t *testing.T) {
	ta := newTestApp(t)
	_, citizen := ta.signIn(t, "Meera", "meera@example.com", models.UserCitizen)
	officer, officerToken := ta.signIn(t, "Asha", "asha@city.gov", models.UserOfficial)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)

	issue := ta.createIssue(t, citizen, 18.5, 73.8)
	rr := ta.do(t, "POST", "/api/v1/officials/issues/"+issue.ID.Hex()+"/assign", admin, map[string]string{"assigneeId": officer.ID.Hex()})
	checkResponseCode(t, http.StatusOK, rr)
	report := ta.submitReport(t, officerToken, issue.ID, map[string]interface{}{
		"reportType": "verification",
		"outcome":    "not-verified",
		"remarks":    "No pothole at the given location",
	})

	rr = ta.review(t, admin, report.ID, map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusOK, rr)
	var decided services.DecisionResult
	decodeBody(t, rr, &decided)
	assert.Equal(t, models.IssueRejected, decided.Issue.Status)
}

func TestReviewUnknownReport(t *testing.T) {
	ta := newTestApp(t)
	_, admin := ta.signIn(t, "Chief", adminEmail, models.UserOfficial)

	rr := ta.review(t, admin, primitive.NewObjectID(), map[string]interface{}{"decision": "approve"})
	checkResponseCode(t, http.StatusNotFound, rr)

	rr = ta.review(t, admin, primitive.NewObjectID(), map[string]interface{}{"decision": "maybe"})
	checkResponseCode(t, http.StatusBadRequest, rr)
}

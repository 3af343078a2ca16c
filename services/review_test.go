package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/citizenvoice/citizenvoice-api/api/testhelpers"
	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

func resolutionInput() services.SubmitReportInput {
	return services.SubmitReportInput{
		ReportType:  models.ReportResolution,
		WorkSummary: "Filled and compacted",
		Proof:       []string{"https://res.cloudinary.com/demo/after.jpg"},
	}
}

func verificationInput(outcome models.VerificationOutcome) services.SubmitReportInput {
	in := services.SubmitReportInput{ReportType: models.ReportVerification, Outcome: outcome}
	if outcome == models.OutcomeVerified {
		in.RootCause = "Water logging"
	} else {
		in.Remarks = "Nothing found at the location"
	}
	return in
}

func approve() services.DecisionInput {
	return services.DecisionInput{Decision: models.DecisionApprove, Confirmed: true}
}

func fieldOf(t *testing.T, err error) []string {
	t.Helper()
	var ve *apierrors.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	out := []string{}
	for _, f := range ve.Fields {
		out = append(out, f.Field)
	}
	return out
}

func TestSubmitReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := f.user(t, "officer", models.UserOfficial)
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityHigh)

	tests := []struct {
		name   string
		in     services.SubmitReportInput
		fields []string
	}{
		{"missing type", services.SubmitReportInput{}, []string{"reportType"}},
		{"verification without outcome", services.SubmitReportInput{ReportType: models.ReportVerification}, []string{"outcome"}},
		{"verified without root cause", services.SubmitReportInput{ReportType: models.ReportVerification, Outcome: models.OutcomeVerified}, []string{"rootCause"}},
		{"not verified without remarks", services.SubmitReportInput{ReportType: models.ReportVerification, Outcome: models.OutcomeNotVerified}, []string{"remarks"}},
		{"resolution without summary or proof", services.SubmitReportInput{ReportType: models.ReportResolution}, []string{"workSummary", "proof"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.review.Submit(ctx, officer.ID, issue.ID, tc.in)
			assert.ElementsMatch(t, tc.fields, fieldOf(t, err))
		})
	}
}

func TestSubmitReportRequiresMatchingIssueStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := f.user(t, "officer", models.UserOfficial)
	reported := f.issue(t, primitive.NewObjectID(), models.IssueReported, models.PriorityLow)

	_, err := f.review.Submit(ctx, officer.ID, reported.ID, verificationInput(models.OutcomeVerified))
	assert.True(t, apierrors.IsConflict(err))
	_, err = f.review.Submit(ctx, officer.ID, reported.ID, resolutionInput())
	assert.True(t, apierrors.IsConflict(err))
	_, err = f.review.Submit(ctx, officer.ID, primitive.NewObjectID(), resolutionInput())
	assert.True(t, apierrors.IsNotFound(err))
}

func TestSubmitReportOnePendingPerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := f.user(t, "officer", models.UserOfficial)
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)

	report, err := f.review.Submit(ctx, officer.ID, issue.ID, resolutionInput())
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, report.Status)

	_, err = f.review.Submit(ctx, officer.ID, issue.ID, resolutionInput())
	assert.True(t, apierrors.IsConflict(err))
	assert.Empty(t, f.store.Events().All(), "submitting never grants RP")
}

func TestSubmitVerificationNotifiesReporter(t *testing.T) {
	f := newFixture(t)
	reporter := f.user(t, "citizen", models.UserCitizen)
	issue := f.issue(t, reporter.ID, models.IssueAcknowledged, models.PriorityLow)

	_, err := f.review.Submit(context.Background(), primitive.NewObjectID(), issue.ID, verificationInput(models.OutcomeVerified))
	require.NoError(t, err)

	notes := f.store.Notifications().All()
	require.Len(t, notes, 1)
	assert.Equal(t, reporter.ID, notes[0].Recipient)
	assert.Equal(t, models.NotificationIssueVerification, notes[0].Type)
	assert.Len(t, f.pusher.sent, 1)
}

func TestDecideRejectRequiresRemarks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, services.DecisionInput{Decision: models.DecisionReject, Remarks: "   "})
	assert.Equal(t, []string{"remarks"}, fieldOf(t, err))
	assert.Equal(t, models.ReportPending, f.currentReport(t, report.ID).Status)
	assert.Equal(t, models.IssueInProgress, f.currentIssue(t, issue.ID).Status)
}

func TestDecideResolutionRequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, services.DecisionInput{Decision: models.DecisionApprove})
	assert.Equal(t, []string{"confirmed"}, fieldOf(t, err))
	assert.Equal(t, models.ReportPending, f.currentReport(t, report.ID).Status)
}

func TestDecideApproveResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reporter := f.user(t, "citizen", models.UserCitizen)
	officer := f.user(t, "officer", models.UserOfficial)
	admin := primitive.NewObjectID()
	_, err := f.community.FindOrCreate(ctx, services.DistrictInput{State: "Maharashtra", District: "Pune"})
	require.NoError(t, err)
	issue := f.issue(t, reporter.ID, models.IssueInProgress, models.PriorityHigh)
	report, err := f.review.Submit(ctx, officer.ID, issue.ID, resolutionInput())
	require.NoError(t, err)

	res, err := f.review.Decide(ctx, admin, report.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.ReportApproved, res.Report.Status)
	assert.Equal(t, models.IssueResolved, res.Issue.Status)
	assert.Equal(t, 10, res.PointsAwarded)

	stored := f.currentIssue(t, issue.ID)
	assert.Equal(t, models.IssueResolved, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)
	decided := f.currentReport(t, report.ID)
	assert.Equal(t, models.ReportApproved, decided.Status)
	require.NotNil(t, decided.ReviewedBy)
	assert.Equal(t, admin, *decided.ReviewedBy)

	events := f.store.Events().All()
	require.Len(t, events, 1)
	assert.Equal(t, officer.ID, events[0].UserID)
	assert.Equal(t, models.EventIssueVerifiedResolved, events[0].EventType)
	assert.Equal(t, 10, events[0].Points)
	assert.Equal(t, "MAH-PUNE", events[0].DistrictID)

	community, err := f.community.Get(ctx, "MAH-PUNE")
	require.NoError(t, err)
	assert.Equal(t, 1, community.Stats.TotalIssuesResolved)

	notes := f.store.Notifications().All()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationIssueResolved, notes[0].Type)
	assert.Equal(t, reporter.ID, notes[0].Recipient)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, reporter.Email, f.mailer.sent[0].to)
}

func TestDecideApproveResolutionWithoutNotifyingReporter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, f.user(t, "citizen", models.UserCitizen).ID, models.IssueInProgress, models.PriorityHigh)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	quiet := false
	in := approve()
	in.NotifyReporter = &quiet
	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, in)
	require.NoError(t, err)
	assert.Empty(t, f.store.Notifications().All())
	assert.Empty(t, f.mailer.sent)
}

func TestDecideMailFailureDoesNotFailDecision(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")
	ctx := context.Background()
	issue := f.issue(t, f.user(t, "citizen", models.UserCitizen).ID, models.IssueInProgress, models.PriorityHigh)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.IssueResolved, f.currentIssue(t, issue.ID).Status)
}

func TestDecideApproveVerification(t *testing.T) {
	tests := []struct {
		outcome models.VerificationOutcome
		want    models.IssueStatus
	}{
		{models.OutcomeVerified, models.IssueInProgress},
		{models.OutcomeNotVerified, models.IssueRejected},
	}
	for _, tc := range tests {
		t.Run(string(tc.outcome), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			issue := f.issue(t, primitive.NewObjectID(), models.IssueAcknowledged, models.PriorityMedium)
			report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, verificationInput(tc.outcome))
			require.NoError(t, err)

			res, err := f.review.Decide(ctx, primitive.NewObjectID(), report.ID, services.DecisionInput{Decision: models.DecisionApprove})
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Issue.Status)
			assert.Equal(t, tc.want, f.currentIssue(t, issue.ID).Status)
			assert.Empty(t, f.store.Events().All(), "verification approval grants no RP")
		})
	}
}

func TestDecideRejectResolutionCreatesNoEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	officer := primitive.NewObjectID()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, officer, issue.ID, resolutionInput())
	require.NoError(t, err)

	res, err := f.review.Decide(ctx, primitive.NewObjectID(), report.ID, services.DecisionInput{Decision: models.DecisionReject, Remarks: "Photos are blurry"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportRejected, res.Report.Status)
	assert.Equal(t, models.IssueInProgress, f.currentIssue(t, issue.ID).Status)
	assert.Empty(t, f.store.Events().All())

	notes := f.store.Notifications().All()
	require.Len(t, notes, 1)
	assert.Equal(t, officer, notes[0].Recipient)
	assert.Contains(t, notes[0].Message, "Photos are blurry")
}

func TestDecideTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	require.NoError(t, err)
	before := f.currentIssue(t, issue.ID)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, services.DecisionInput{Decision: models.DecisionReject, Remarks: "changed my mind"})
	assert.True(t, apierrors.IsConflict(err))
	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	assert.True(t, apierrors.IsConflict(err))

	after := f.currentIssue(t, issue.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Len(t, f.store.Events().All(), 1)
}

func TestDecideAbortsWhenIssueMovedOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)
	_, err = f.issues.Reject(ctx, issue.ID, "duplicate of another issue")
	require.NoError(t, err)

	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	assert.True(t, apierrors.IsConflict(err))
	assert.Equal(t, models.ReportPending, f.currentReport(t, report.ID).Status)
}

func TestDecideIsAtomicWhenEventAppendFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	f.store.FailOn("Events.Append", testhelpers.ErrInjected)
	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	require.Error(t, err)
	assert.Equal(t, 500, apierrors.StatusCode(err))

	assert.Equal(t, models.IssueInProgress, f.currentIssue(t, issue.ID).Status)
	assert.Nil(t, f.currentIssue(t, issue.ID).ResolvedAt)
	assert.Equal(t, models.ReportPending, f.currentReport(t, report.ID).Status)
	assert.Empty(t, f.store.Events().All())
	assert.Empty(t, f.store.Notifications().All())
	assert.Empty(t, f.mailer.sent)

	// the same decision goes through once the store recovers
	f.store.FailOn("Events.Append", nil)
	_, err = f.review.Decide(ctx, primitive.NewObjectID(), report.ID, approve())
	require.NoError(t, err)
	assert.Equal(t, models.IssueResolved, f.currentIssue(t, issue.ID).Status)
	assert.Len(t, f.store.Events().All(), 1)
}

func TestReviewQueueOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	add := func(priority models.Priority, age time.Duration, issueExists bool) primitive.ObjectID {
		issueID := primitive.NewObjectID()
		if issueExists {
			issueID = f.issue(t, primitive.NewObjectID(), models.IssueInProgress, priority).ID
		}
		r := models.Report{
			ID:          primitive.NewObjectID(),
			ReportType:  models.ReportResolution,
			Issue:       issueID,
			SubmittedAt: base.Add(age),
			Status:      models.ReportPending,
		}
		require.NoError(t, f.store.Reports().Insert(ctx, r))
		return r.ID
	}
	lowOld := add(models.PriorityLow, 0, true)
	urgentNew := add(models.PriorityUrgent, 10*time.Minute, true)
	urgentOld := add(models.PriorityUrgent, 5*time.Minute, true)
	medium := add(models.PriorityMedium, time.Minute, true)
	orphan := add(models.PriorityUrgent, -time.Minute, false)

	items, err := f.review.Queue(ctx, "")
	require.NoError(t, err)
	got := []primitive.ObjectID{}
	for _, it := range items {
		got = append(got, it.Report.ID)
	}
	assert.Equal(t, []primitive.ObjectID{urgentOld, urgentNew, medium, orphan, lowOld}, got)
	assert.Nil(t, items[3].Issue)

	_, err = f.review.Queue(ctx, "bogus")
	assert.Equal(t, []string{"reportType"}, fieldOf(t, err))
}

func TestReviewGetAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issue(t, primitive.NewObjectID(), models.IssueInProgress, models.PriorityLow)
	report, err := f.review.Submit(ctx, primitive.NewObjectID(), issue.ID, resolutionInput())
	require.NoError(t, err)

	item, err := f.review.Get(ctx, report.ID)
	require.NoError(t, err)
	require.NotNil(t, item.Issue)
	assert.Equal(t, issue.ID, item.Issue.ID)

	history, err := f.review.History(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	_, err = f.review.Get(ctx, primitive.NewObjectID())
	assert.True(t, apierrors.IsNotFound(err))
}

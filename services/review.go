package services

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
	templates "github.com/citizenvoice/citizenvoice-api/templates/html"
)

// ReviewService moves field officer reports through admin review and
// applies the approved outcome to the issue
type ReviewService struct {
	Reports     databases.ReportDatabase
	Issues      databases.IssueDatabase
	Events      databases.ReputationEventDatabase
	Communities databases.CommunityDatabase
	Users       databases.UserDatabase
	Tx          databases.Transactor
	Notifier    *NotificationService
	Mailer      Mailer
	ClientURL   string
}

// SubmitReportInput is a verification or resolution report from the field
type SubmitReportInput struct {
	ReportType    models.ReportType          `json:"reportType" validate:"required,oneof=verification resolution"`
	Outcome       models.VerificationOutcome `json:"outcome" validate:"omitempty,oneof=verified not-verified"`
	Evidence      []string                   `json:"evidence" validate:"max=10,dive,url"`
	Proof         []string                   `json:"proof" validate:"max=10,dive,url"`
	RootCause     string                     `json:"rootCause" validate:"max=2000"`
	WorkSummary   string                     `json:"workSummary" validate:"max=2000"`
	StepsTaken    string                     `json:"stepsTaken" validate:"max=2000"`
	ResourcesUsed string                     `json:"resourcesUsed" validate:"max=1000"`
	Remarks       string                     `json:"remarks" validate:"max=1000"`
}

func (in SubmitReportInput) check() error {
	if err := validateStruct(in); err != nil {
		return err
	}
	var verrs validationErrors
	switch in.ReportType {
	case models.ReportVerification:
		switch in.Outcome {
		case "":
			verrs.add("outcome", "is required")
		case models.OutcomeVerified:
			if strings.TrimSpace(in.RootCause) == "" {
				verrs.add("rootCause", "is required when the issue is verified")
			}
		case models.OutcomeNotVerified:
			if strings.TrimSpace(in.Remarks) == "" {
				verrs.add("remarks", "is required when the issue is not verified")
			}
		}
	case models.ReportResolution:
		if strings.TrimSpace(in.WorkSummary) == "" {
			verrs.add("workSummary", "is required")
		}
		if len(in.Proof) == 0 {
			verrs.add("proof", "at least one proof image is required")
		}
	}
	return verrs.err()
}

// reportableStatus is the issue status each report type is filed against
var reportableStatus = map[models.ReportType]models.IssueStatus{
	models.ReportVerification: models.IssueAcknowledged,
	models.ReportResolution:   models.IssueInProgress,
}

// Submit files a pending report for issueID
func (s *ReviewService) Submit(ctx context.Context, officer primitive.ObjectID, issueID primitive.ObjectID, in SubmitReportInput) (*models.Report, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	issue, err := s.Issues.FindByID(ctx, issueID)
	if err != nil {
		return nil, apierrors.Internal("submit report", err)
	}
	if want := reportableStatus[in.ReportType]; issue.Status != want {
		return nil, apierrors.Conflict("%s reports need an %s issue, issue is %s", in.ReportType, want, issue.Status)
	}
	pending, err := s.Reports.CountPending(ctx, issueID, in.ReportType)
	if err != nil {
		return nil, apierrors.Internal("submit report", err)
	}
	if pending > 0 {
		return nil, apierrors.Conflict("issue already has a pending %s report", in.ReportType)
	}

	report := models.Report{
		ID:            primitive.NewObjectID(),
		ReportType:    in.ReportType,
		Issue:         issueID,
		SubmittedBy:   officer,
		SubmittedAt:   now(),
		Evidence:      in.Evidence,
		Proof:         in.Proof,
		RootCause:     in.RootCause,
		WorkSummary:   in.WorkSummary,
		StepsTaken:    in.StepsTaken,
		ResourcesUsed: in.ResourcesUsed,
		Remarks:       in.Remarks,
		Status:        models.ReportPending,
	}
	if in.ReportType == models.ReportVerification {
		report.Outcome = in.Outcome
	}
	if err := s.Reports.Insert(ctx, report); err != nil {
		return nil, apierrors.Internal("submit report", err)
	}
	zap.S().Infow("report submitted", "report", report.ID.Hex(), "type", report.ReportType, "issue", issueID.Hex())

	if in.ReportType == models.ReportVerification {
		s.Notifier.Notify(ctx, models.NewNotification(issue.ReportedBy, models.NotificationIssueVerification,
			"Your issue is being verified",
			fmt.Sprintf("A field officer has inspected %q and submitted a verification report.", issue.Title),
			issue.ID, report.SubmittedAt))
	}
	return &report, nil
}

// Queue returns pending reports, most urgent issue first then oldest first
func (s *ReviewService) Queue(ctx context.Context, reportType models.ReportType) ([]models.ReviewQueueItem, error) {
	if reportType != "" && reportType != models.ReportVerification && reportType != models.ReportResolution {
		return nil, apierrors.Validation("reportType", "must be one of verification resolution")
	}
	reports, err := s.Reports.ListPending(ctx, reportType)
	if err != nil {
		return nil, apierrors.Internal("review queue", err)
	}
	ids := make([]primitive.ObjectID, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.Issue)
	}
	issues, err := s.Issues.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apierrors.Internal("review queue", err)
	}

	items := make([]models.ReviewQueueItem, len(reports))
	for i, r := range reports {
		items[i] = models.ReviewQueueItem{Report: r}
		if is, ok := issues[r.Issue]; ok {
			items[i].Issue = &is
		}
	}
	models.SortReviewQueue(items)
	return items, nil
}

// Get returns a report with its issue
func (s *ReviewService) Get(ctx context.Context, id primitive.ObjectID) (*models.ReviewQueueItem, error) {
	report, err := s.Reports.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("get report", err)
	}
	item := &models.ReviewQueueItem{Report: *report}
	issue, err := s.Issues.FindByID(ctx, report.Issue)
	switch {
	case err == nil:
		item.Issue = issue
	case !apierrors.IsNotFound(err):
		return nil, apierrors.Internal("get report", err)
	}
	return item, nil
}

// History lists every report filed against an issue
func (s *ReviewService) History(ctx context.Context, issueID primitive.ObjectID) ([]models.Report, error) {
	if _, err := s.Issues.FindByID(ctx, issueID); err != nil {
		return nil, apierrors.Internal("report history", err)
	}
	reports, err := s.Reports.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, apierrors.Internal("report history", err)
	}
	return reports, nil
}

// DecisionInput is an admin's verdict on a pending report
type DecisionInput struct {
	Decision       models.ReviewDecision `json:"decision" validate:"required,oneof=approve reject"`
	Remarks        string                `json:"remarks" validate:"max=1000"`
	Confirmed      bool                  `json:"confirmed"`
	NotifyReporter *bool                 `json:"notifyReporter"`
}

func (in DecisionInput) notifyReporter() bool {
	return in.NotifyReporter == nil || *in.NotifyReporter
}

// DecisionResult is the state after a decision was committed
type DecisionResult struct {
	Report        models.Report `json:"report"`
	Issue         models.Issue  `json:"issue"`
	PointsAwarded int           `json:"pointsAwarded"`
}

// approvedIssueStatus is the issue status an approved report moves to
func approvedIssueStatus(r *models.Report) models.IssueStatus {
	if r.ReportType == models.ReportResolution {
		return models.IssueResolved
	}
	if r.Outcome == models.OutcomeNotVerified {
		return models.IssueRejected
	}
	return models.IssueInProgress
}

// Decide approves or rejects a pending report. The report decision, the
// issue transition, the RP event, the district counter and the notification
// records commit together or not at all.
func (s *ReviewService) Decide(ctx context.Context, reviewer primitive.ObjectID, reportID primitive.ObjectID, in DecisionInput) (*DecisionResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	in.Remarks = strings.TrimSpace(in.Remarks)
	if in.Decision == models.DecisionReject && in.Remarks == "" {
		return nil, apierrors.Validation("remarks", "is required when rejecting a report")
	}

	report, err := s.Reports.FindByID(ctx, reportID)
	if err != nil {
		return nil, apierrors.Internal("decide report", err)
	}
	if report.Status != models.ReportPending {
		return nil, apierrors.Conflict("report has already been %s", report.Status)
	}
	approve := in.Decision == models.DecisionApprove
	if approve && report.ReportType == models.ReportResolution && !in.Confirmed {
		return nil, apierrors.Validation("confirmed", "must be true to approve a resolution")
	}
	issue, err := s.Issues.FindByID(ctx, report.Issue)
	if err != nil {
		return nil, apierrors.Internal("decide report", err)
	}

	target := issue.Status
	if approve {
		target = approvedIssueStatus(report)
		if !models.CanTransitionIssue(issue.Status, target) {
			return nil, apierrors.Conflict("issue is %s and cannot move to %s", issue.Status, target)
		}
	}

	at := now()
	reportStatus := models.ReportRejected
	if approve {
		reportStatus = models.ReportApproved
	}
	var (
		notes  []models.Notification
		points int
	)
	err = s.Tx.WithTransaction(ctx, func(tx context.Context) error {
		notes, points = nil, 0
		if err := s.Reports.Decide(tx, report.ID, reportStatus, reviewer, in.Remarks, at); err != nil {
			return err
		}
		if !approve {
			notes = append(notes, models.NewNotification(report.SubmittedBy, models.NotificationIssueStatusUpdate,
				fmt.Sprintf("Your %s report was rejected", report.ReportType),
				fmt.Sprintf("Your %s report for %q was rejected: %s", report.ReportType, issue.Title, in.Remarks),
				issue.ID, at))
			return s.record(tx, notes)
		}

		set := bson.M{"status": target}
		switch target {
		case models.IssueResolved:
			set["resolvedAt"] = at
		case models.IssueRejected:
			set["rejectionReason"] = report.Remarks
		}
		if err := s.Issues.UpdateIfStatus(tx, issue.ID, issue.Status, set); err != nil {
			return err
		}

		if report.ReportType == models.ReportResolution {
			event := models.NewReputationEvent(report.SubmittedBy, models.EventIssueVerifiedResolved, issue.DistrictID, issue.ID, at)
			added, err := s.Events.Append(tx, event)
			if err != nil {
				return err
			}
			if added {
				points = event.Points
			}
			if issue.DistrictID != "" {
				if err := s.Communities.IncrementStat(tx, issue.DistrictID, databases.StatIssuesResolved, 1); err != nil {
					return err
				}
			}
			if in.notifyReporter() {
				notes = append(notes, models.NewNotification(issue.ReportedBy, models.NotificationIssueResolved,
					"Your issue has been resolved",
					fmt.Sprintf("%q has been resolved. Thank you for reporting it.", issue.Title),
					issue.ID, at))
			}
		} else {
			notes = append(notes, models.NewNotification(issue.ReportedBy, models.NotificationIssueStatusUpdate,
				verificationTitle(target), verificationMessage(issue.Title, target), issue.ID, at))
		}
		return s.record(tx, notes)
	})
	if err != nil {
		return nil, apierrors.Internal("decide report", err)
	}
	zap.S().Infow("report decided", "report", report.ID.Hex(), "decision", in.Decision, "issue", issue.ID.Hex(), "issueStatus", target)

	s.Notifier.Deliver(notes...)
	if approve && report.ReportType == models.ReportResolution && in.notifyReporter() {
		s.emailResolution(ctx, issue, report.WorkSummary)
	}

	report.Status = reportStatus
	report.ReviewedBy = &reviewer
	report.ReviewedAt = &at
	report.ReviewRemarks = in.Remarks
	issue.Status = target
	if target == models.IssueResolved {
		issue.ResolvedAt = &at
	}
	return &DecisionResult{Report: *report, Issue: *issue, PointsAwarded: points}, nil
}

func (s *ReviewService) record(ctx context.Context, notes []models.Notification) error {
	for _, n := range notes {
		if err := s.Notifier.Record(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func verificationTitle(target models.IssueStatus) string {
	if target == models.IssueRejected {
		return "Your issue could not be verified"
	}
	return "Your issue has been verified"
}

func verificationMessage(title string, target models.IssueStatus) string {
	if target == models.IssueRejected {
		return fmt.Sprintf("Officials could not verify %q on site and closed it.", title)
	}
	return fmt.Sprintf("%q has been verified and work is now in progress.", title)
}

// emailResolution is best effort; the decision is already committed
func (s *ReviewService) emailResolution(ctx context.Context, issue *models.Issue, workSummary string) {
	if s.Mailer == nil || s.Users == nil {
		return
	}
	reporter, err := s.Users.FindByID(ctx, issue.ReportedBy)
	if err != nil {
		zap.S().Warnw("resolution email skipped, reporter not found", "issue", issue.ID.Hex(), "error", err)
		return
	}
	subject, plain, html := templates.IssueResolvedEmail(reporter.Name, issue.Title, workSummary, s.ClientURL)
	if err := s.Mailer.Send(ctx, reporter.Name, reporter.Email, subject, plain, html); err != nil {
		zap.S().Warnw("resolution email failed", "issue", issue.ID.Hex(), "error", err)
	}
}

package models

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportType distinguishes field officer submissions
type ReportType string

// Report types
const (
	ReportVerification ReportType = "verification"
	ReportResolution   ReportType = "resolution"
)

// ReportStatus is set only by a review decision
type ReportStatus string

// Report statuses
const (
	ReportPending  ReportStatus = "pending"
	ReportApproved ReportStatus = "approved"
	ReportRejected ReportStatus = "rejected"
)

// VerificationOutcome is the field officer's finding on site
type VerificationOutcome string

// Verification outcomes
const (
	OutcomeVerified    VerificationOutcome = "verified"
	OutcomeNotVerified VerificationOutcome = "not-verified"
)

// ReviewDecision is what an admin official decides about a pending report
type ReviewDecision string

// Review decisions
const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)

// Report holds the structure for the reports collection in mongo
type Report struct {
	ID            primitive.ObjectID  `json:"_id" bson:"_id"`
	ReportType    ReportType          `json:"reportType" bson:"reportType"`
	Issue         primitive.ObjectID  `json:"issue" bson:"issue"`
	SubmittedBy   primitive.ObjectID  `json:"submittedBy" bson:"submittedBy"`
	SubmittedAt   time.Time           `json:"submittedAt" bson:"submittedAt"`
	Outcome       VerificationOutcome `json:"outcome,omitempty" bson:"outcome,omitempty"`
	Evidence      []string            `json:"evidence,omitempty" bson:"evidence,omitempty"`
	Proof         []string            `json:"proof,omitempty" bson:"proof,omitempty"`
	RootCause     string              `json:"rootCause,omitempty" bson:"rootCause,omitempty"`
	WorkSummary   string              `json:"workSummary,omitempty" bson:"workSummary,omitempty"`
	StepsTaken    string              `json:"stepsTaken,omitempty" bson:"stepsTaken,omitempty"`
	ResourcesUsed string              `json:"resourcesUsed,omitempty" bson:"resourcesUsed,omitempty"`
	Remarks       string              `json:"remarks,omitempty" bson:"remarks,omitempty"`
	Status        ReportStatus        `json:"status" bson:"status"`
	ReviewedBy    *primitive.ObjectID `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time          `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	ReviewRemarks string              `json:"reviewRemarks,omitempty" bson:"reviewRemarks,omitempty"`
}

// ReviewQueueItem is a pending report paired with its issue for triage
type ReviewQueueItem struct {
	Report Report `json:"report"`
	Issue  *Issue `json:"issue,omitempty"`
}

// Priority returns the owning issue priority, low when the issue is unknown
func (q ReviewQueueItem) Priority() Priority {
	if q.Issue == nil {
		return PriorityLow
	}
	return q.Issue.Priority
}

// SortReviewQueue orders by issue priority (urgent first) then oldest submission first
func SortReviewQueue(items []ReviewQueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].Priority().Rank(), items[j].Priority().Rank()
		if pi != pj {
			return pi > pj
		}
		return items[i].Report.SubmittedAt.Before(items[j].Report.SubmittedAt)
	})
}

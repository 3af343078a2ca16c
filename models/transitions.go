package models

type transitionTable[S ~string] map[S][]S

func (t transitionTable[S]) allows(from, to S) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (t transitionTable[S]) terminal(s S) bool {
	return len(t[s]) == 0
}

// Rejection and cancellation are only reachable from non-terminal states.
var issueTransitions = transitionTable[IssueStatus]{
	IssueReported:     {IssueAcknowledged, IssueRejected},
	IssueAcknowledged: {IssueInProgress, IssueRejected},
	IssueInProgress:   {IssueResolved, IssueRejected},
}

var workOrderTransitions = transitionTable[WorkOrderStatus]{
	WorkOrderPending:    {WorkOrderAssigned, WorkOrderCancelled},
	WorkOrderAssigned:   {WorkOrderInProgress, WorkOrderCancelled},
	WorkOrderInProgress: {WorkOrderCompleted, WorkOrderCancelled},
}

var inspectionTransitions = transitionTable[InspectionStatus]{
	InspectionScheduled:   {InspectionInProgress, InspectionRescheduled, InspectionCancelled},
	InspectionRescheduled: {InspectionInProgress, InspectionRescheduled, InspectionCancelled},
	InspectionInProgress:  {InspectionCompleted, InspectionCancelled},
}

var resourceRequestTransitions = transitionTable[ResourceRequestStatus]{
	ResourcePending:           {ResourceApproved, ResourcePartiallyApproved, ResourceRejected, ResourceCancelled},
	ResourceApproved:          {ResourceFulfilled, ResourceCancelled},
	ResourcePartiallyApproved: {ResourceFulfilled, ResourceCancelled},
}

var reportTransitions = transitionTable[ReportStatus]{
	ReportPending: {ReportApproved, ReportRejected},
}

// CanTransitionIssue reports whether an issue may move from one status to another
func CanTransitionIssue(from, to IssueStatus) bool { return issueTransitions.allows(from, to) }

// IsTerminal reports whether no further issue transitions are possible
func (s IssueStatus) IsTerminal() bool { return issueTransitions.terminal(s) }

// CanTransitionWorkOrder reports whether a work order may move from one status to another
func CanTransitionWorkOrder(from, to WorkOrderStatus) bool {
	return workOrderTransitions.allows(from, to)
}

// IsTerminal reports whether no further work order transitions are possible
func (s WorkOrderStatus) IsTerminal() bool { return workOrderTransitions.terminal(s) }

// CanTransitionInspection reports whether an inspection may move from one status to another
func CanTransitionInspection(from, to InspectionStatus) bool {
	return inspectionTransitions.allows(from, to)
}

// IsTerminal reports whether no further inspection transitions are possible
func (s InspectionStatus) IsTerminal() bool { return inspectionTransitions.terminal(s) }

// CanTransitionResourceRequest reports whether a resource request may move from one status to another
func CanTransitionResourceRequest(from, to ResourceRequestStatus) bool {
	return resourceRequestTransitions.allows(from, to)
}

// IsTerminal reports whether no further resource request transitions are possible
func (s ResourceRequestStatus) IsTerminal() bool { return resourceRequestTransitions.terminal(s) }

// CanTransitionReport reports whether a review may move a report from one status to another
func CanTransitionReport(from, to ReportStatus) bool { return reportTransitions.allows(from, to) }

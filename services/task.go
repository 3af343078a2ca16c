package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// TaskService manages the work orders, inspections and resource requests
// officials raise around issues
type TaskService struct {
	WorkOrders       databases.WorkOrderDatabase
	Inspections      databases.InspectionDatabase
	ResourceRequests databases.ResourceRequestDatabase
	Issues           databases.IssueDatabase
	Users            databases.UserDatabase
	Notifier         *NotificationService
}

// displayID stamps a human readable id. ObjectIDs stay the real key.
func displayID(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, at.UnixMilli())
}

// TaskPage is one page of tasks with the total match count
type TaskPage[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func parseOptionalID(field string, hex *string) (*primitive.ObjectID, error) {
	if hex == nil || *hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(*hex)
	if err != nil {
		return nil, apierrors.Validation(field, "must be a valid id")
	}
	return &id, nil
}

// references checks optional related issue and assignee ids
func (s *TaskService) references(ctx context.Context, relatedIssue, assignedTo *string) (issue, assignee *primitive.ObjectID, err error) {
	if issue, err = parseOptionalID("relatedIssue", relatedIssue); err != nil {
		return nil, nil, err
	}
	if assignee, err = parseOptionalID("assignedTo", assignedTo); err != nil {
		return nil, nil, err
	}
	if issue != nil {
		if _, err := s.Issues.FindByID(ctx, *issue); err != nil {
			return nil, nil, err
		}
	}
	if assignee != nil {
		if err := s.checkOfficial(ctx, *assignee); err != nil {
			return nil, nil, err
		}
	}
	return issue, assignee, nil
}

func (s *TaskService) checkOfficial(ctx context.Context, id primitive.ObjectID) error {
	user, err := s.Users.FindByID(ctx, id)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return apierrors.Validation("assignedTo", "must reference an existing official")
		}
		return err
	}
	if user.Role != models.UserOfficial {
		return apierrors.Validation("assignedTo", "must reference an official")
	}
	return nil
}

func orDefaultPriority(p models.Priority) models.Priority {
	if p == "" {
		return models.PriorityMedium
	}
	return p
}

func (s *TaskService) notifyAssignee(ctx context.Context, assignee *primitive.ObjectID, kind, displayID, title string) {
	if assignee == nil || s.Notifier == nil {
		return
	}
	s.Notifier.Notify(ctx, SystemNotification(*assignee,
		fmt.Sprintf("New %s assigned", kind),
		fmt.Sprintf("%s %s: %s", strings.ToUpper(kind[:1])+kind[1:], displayID, title)))
}

// WorkOrderInput creates a work order
type WorkOrderInput struct {
	Title          string                `json:"title" validate:"required,max=200"`
	Description    string                `json:"description" validate:"required,max=2000"`
	RelatedIssue   *string               `json:"relatedIssue"`
	AssignedTo     *string               `json:"assignedTo"`
	Priority       models.Priority       `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	WorkType       string                `json:"workType" validate:"omitempty,oneof=repair maintenance installation inspection cleaning other"`
	Location       *models.Location      `json:"location"`
	DueDate        *time.Time            `json:"dueDate"`
	EstimatedHours float64               `json:"estimatedHours" validate:"gte=0"`
	Resources      []models.WorkResource `json:"resources" validate:"max=50,dive"`
	Notes          string                `json:"notes" validate:"max=2000"`
}

// CreateWorkOrder stores a work order, assigned if an assignee is given
func (s *TaskService) CreateWorkOrder(ctx context.Context, creator primitive.ObjectID, in WorkOrderInput) (*models.WorkOrder, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	issue, assignee, err := s.references(ctx, in.RelatedIssue, in.AssignedTo)
	if err != nil {
		return nil, apierrors.Internal("create work order", err)
	}
	status := models.WorkOrderPending
	if assignee != nil {
		status = models.WorkOrderAssigned
	}
	workType := in.WorkType
	if workType == "" {
		workType = "other"
	}
	resources := in.Resources
	if resources == nil {
		resources = []models.WorkResource{}
	}

	at := now()
	wo := models.WorkOrder{
		ID:             primitive.NewObjectID(),
		WorkOrderID:    displayID("WO", at),
		Title:          in.Title,
		Description:    in.Description,
		RelatedIssue:   issue,
		AssignedTo:     assignee,
		CreatedBy:      creator,
		Priority:       orDefaultPriority(in.Priority),
		Status:         status,
		WorkType:       workType,
		Location:       in.Location,
		DueDate:        in.DueDate,
		EstimatedHours: in.EstimatedHours,
		Resources:      resources,
		Notes:          in.Notes,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if err := s.WorkOrders.Insert(ctx, wo); err != nil {
		return nil, apierrors.Internal("create work order", err)
	}
	zap.S().Infow("work order created", "workOrder", wo.WorkOrderID, "status", wo.Status)
	s.notifyAssignee(ctx, assignee, "work order", wo.WorkOrderID, wo.Title)
	return &wo, nil
}

// GetWorkOrder returns one work order
func (s *TaskService) GetWorkOrder(ctx context.Context, id primitive.ObjectID) (*models.WorkOrder, error) {
	wo, err := s.WorkOrders.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("get work order", err)
	}
	return wo, nil
}

// ListWorkOrders filters work orders, newest first
func (s *TaskService) ListWorkOrders(ctx context.Context, filter databases.TaskFilter, page databases.Page) (*TaskPage[models.WorkOrder], error) {
	page = page.Normalize()
	items, total, err := s.WorkOrders.List(ctx, filter, page)
	if err != nil {
		return nil, apierrors.Internal("list work orders", err)
	}
	return &TaskPage[models.WorkOrder]{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// WorkOrderTransition moves a work order to Status with its payload
type WorkOrderTransition struct {
	Status      models.WorkOrderStatus `json:"status" validate:"required,oneof=pending assigned in-progress completed cancelled"`
	AssignedTo  *string                `json:"assignedTo"`
	ActualHours float64                `json:"actualHours" validate:"gte=0"`
	Notes       string                 `json:"notes" validate:"max=2000"`
}

// TransitionWorkOrder applies a legal status change
func (s *TaskService) TransitionWorkOrder(ctx context.Context, id primitive.ObjectID, in WorkOrderTransition) (*models.WorkOrder, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	wo, err := s.WorkOrders.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("transition work order", err)
	}
	if !models.CanTransitionWorkOrder(wo.Status, in.Status) {
		return nil, apierrors.Conflict("work order is %s and cannot move to %s", wo.Status, in.Status)
	}

	at := now()
	set := bson.M{"status": in.Status}
	var newAssignee *primitive.ObjectID
	switch in.Status {
	case models.WorkOrderAssigned:
		if in.AssignedTo == nil || *in.AssignedTo == "" {
			return nil, apierrors.Validation("assignedTo", "is required to assign a work order")
		}
		if newAssignee, err = parseOptionalID("assignedTo", in.AssignedTo); err != nil {
			return nil, err
		}
		if err := s.checkOfficial(ctx, *newAssignee); err != nil {
			return nil, apierrors.Internal("transition work order", err)
		}
		set["assignedTo"] = *newAssignee
		wo.AssignedTo = newAssignee
	case models.WorkOrderCompleted:
		set["completedAt"] = at
		wo.CompletedAt = &at
		if in.ActualHours > 0 {
			set["actualHours"] = in.ActualHours
			wo.ActualHours = in.ActualHours
		}
	}
	if in.Notes != "" {
		set["notes"] = in.Notes
		wo.Notes = in.Notes
	}
	if err := s.WorkOrders.UpdateIfStatus(ctx, id, wo.Status, set); err != nil {
		return nil, apierrors.Internal("transition work order", err)
	}
	zap.S().Infow("work order transitioned", "workOrder", wo.WorkOrderID, "from", wo.Status, "to", in.Status)
	wo.Status = in.Status
	wo.UpdatedAt = at
	s.notifyAssignee(ctx, newAssignee, "work order", wo.WorkOrderID, wo.Title)
	return wo, nil
}

// InspectionInput creates an inspection
type InspectionInput struct {
	Title          string                 `json:"title" validate:"required,max=200"`
	Description    string                 `json:"description" validate:"max=2000"`
	InspectionType string                 `json:"inspectionType" validate:"omitempty,oneof=routine complaint follow-up safety quality compliance"`
	RelatedIssue   *string                `json:"relatedIssue"`
	AssignedTo     *string                `json:"assignedTo"`
	ScheduledDate  time.Time              `json:"scheduledDate" validate:"required"`
	Priority       models.Priority        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Location       *models.Location       `json:"location"`
	Checklist      []models.ChecklistItem `json:"checklist" validate:"max=100,dive"`
}

// CreateInspection schedules an inspection
func (s *TaskService) CreateInspection(ctx context.Context, creator primitive.ObjectID, in InspectionInput) (*models.Inspection, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	issue, assignee, err := s.references(ctx, in.RelatedIssue, in.AssignedTo)
	if err != nil {
		return nil, apierrors.Internal("create inspection", err)
	}
	inspectionType := in.InspectionType
	if inspectionType == "" {
		inspectionType = "routine"
	}
	checklist := in.Checklist
	if checklist == nil {
		checklist = []models.ChecklistItem{}
	}

	at := now()
	insp := models.Inspection{
		ID:             primitive.NewObjectID(),
		InspectionID:   displayID("INSP", at),
		Title:          in.Title,
		Description:    in.Description,
		InspectionType: inspectionType,
		RelatedIssue:   issue,
		AssignedTo:     assignee,
		CreatedBy:      creator,
		ScheduledDate:  in.ScheduledDate.UTC(),
		Status:         models.InspectionScheduled,
		Priority:       orDefaultPriority(in.Priority),
		Location:       in.Location,
		Checklist:      checklist,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if err := s.Inspections.Insert(ctx, insp); err != nil {
		return nil, apierrors.Internal("create inspection", err)
	}
	zap.S().Infow("inspection scheduled", "inspection", insp.InspectionID, "scheduledDate", insp.ScheduledDate)
	s.notifyAssignee(ctx, assignee, "inspection", insp.InspectionID, insp.Title)
	return &insp, nil
}

// GetInspection returns one inspection
func (s *TaskService) GetInspection(ctx context.Context, id primitive.ObjectID) (*models.Inspection, error) {
	insp, err := s.Inspections.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("get inspection", err)
	}
	return insp, nil
}

// ListInspections filters inspections
func (s *TaskService) ListInspections(ctx context.Context, filter databases.TaskFilter, page databases.Page) (*TaskPage[models.Inspection], error) {
	page = page.Normalize()
	items, total, err := s.Inspections.List(ctx, filter, page)
	if err != nil {
		return nil, apierrors.Internal("list inspections", err)
	}
	return &TaskPage[models.Inspection]{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// InspectionTransition moves an inspection to Status with its payload
type InspectionTransition struct {
	Status          models.InspectionStatus `json:"status" validate:"required,oneof=scheduled in-progress completed cancelled rescheduled"`
	ScheduledDate   *time.Time              `json:"scheduledDate"`
	Findings        string                  `json:"findings" validate:"max=5000"`
	ConditionRating int                     `json:"conditionRating" validate:"omitempty,min=1,max=5"`
	Checklist       []models.ChecklistItem  `json:"checklist" validate:"max=100,dive"`
	Recommendations string                  `json:"recommendations" validate:"max=2000"`
}

// TransitionInspection applies a legal status change
func (s *TaskService) TransitionInspection(ctx context.Context, id primitive.ObjectID, in InspectionTransition) (*models.Inspection, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	insp, err := s.Inspections.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("transition inspection", err)
	}
	if !models.CanTransitionInspection(insp.Status, in.Status) {
		return nil, apierrors.Conflict("inspection is %s and cannot move to %s", insp.Status, in.Status)
	}

	at := now()
	set := bson.M{"status": in.Status}
	switch in.Status {
	case models.InspectionRescheduled:
		if in.ScheduledDate == nil || in.ScheduledDate.IsZero() {
			return nil, apierrors.Validation("scheduledDate", "is required to reschedule")
		}
		scheduled := in.ScheduledDate.UTC()
		set["scheduledDate"] = scheduled
		// a new date earns a new reminder
		set["reminderSentAt"] = nil
		insp.ScheduledDate = scheduled
		insp.ReminderSentAt = nil
	case models.InspectionCompleted:
		set["completedAt"] = at
		insp.CompletedAt = &at
		if in.Findings != "" {
			set["findings"] = in.Findings
			insp.Findings = in.Findings
		}
		if in.ConditionRating != 0 {
			set["conditionRating"] = in.ConditionRating
			insp.ConditionRating = in.ConditionRating
		}
		if in.Checklist != nil {
			set["checklist"] = in.Checklist
			insp.Checklist = in.Checklist
		}
		if in.Recommendations != "" {
			set["recommendations"] = in.Recommendations
			insp.Recommendations = in.Recommendations
		}
	}
	if err := s.Inspections.UpdateIfStatus(ctx, id, insp.Status, set); err != nil {
		return nil, apierrors.Internal("transition inspection", err)
	}
	zap.S().Infow("inspection transitioned", "inspection", insp.InspectionID, "from", insp.Status, "to", in.Status)
	insp.Status = in.Status
	insp.UpdatedAt = at
	return insp, nil
}

// ResourceRequestInput creates a resource request
type ResourceRequestInput struct {
	Title         string                `json:"title" validate:"required,max=200"`
	RequestType   string                `json:"requestType" validate:"omitempty,oneof=equipment material personnel vehicle budget other"`
	Items         []models.ResourceItem `json:"items" validate:"required,min=1,max=50,dive"`
	Justification string                `json:"justification" validate:"required,max=2000"`
	RelatedIssue  *string               `json:"relatedIssue"`
	Priority      models.Priority       `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	RequiredBy    *time.Time            `json:"requiredBy"`
}

// CreateResourceRequest stores a pending request with its total cost computed
func (s *TaskService) CreateResourceRequest(ctx context.Context, requester primitive.ObjectID, in ResourceRequestInput) (*models.ResourceRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	issue, _, err := s.references(ctx, in.RelatedIssue, nil)
	if err != nil {
		return nil, apierrors.Internal("create resource request", err)
	}
	requestType := in.RequestType
	if requestType == "" {
		requestType = "other"
	}
	items := make([]models.ResourceItem, len(in.Items))
	for i, it := range in.Items {
		it.ApprovedQuantity = 0
		items[i] = it
	}

	at := now()
	rr := models.ResourceRequest{
		ID:                 primitive.NewObjectID(),
		RequestID:          displayID("RES", at),
		Title:              in.Title,
		RequestType:        requestType,
		Items:              items,
		TotalEstimatedCost: models.TotalCost(items),
		Justification:      in.Justification,
		RelatedIssue:       issue,
		RequestedBy:        requester,
		Priority:           orDefaultPriority(in.Priority),
		RequiredBy:         in.RequiredBy,
		Status:             models.ResourcePending,
		CreatedAt:          at,
		UpdatedAt:          at,
	}
	if err := s.ResourceRequests.Insert(ctx, rr); err != nil {
		return nil, apierrors.Internal("create resource request", err)
	}
	zap.S().Infow("resource request created", "request", rr.RequestID, "totalEstimatedCost", rr.TotalEstimatedCost)
	return &rr, nil
}

// GetResourceRequest returns one resource request
func (s *TaskService) GetResourceRequest(ctx context.Context, id primitive.ObjectID) (*models.ResourceRequest, error) {
	rr, err := s.ResourceRequests.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("get resource request", err)
	}
	return rr, nil
}

// ListResourceRequests filters resource requests
func (s *TaskService) ListResourceRequests(ctx context.Context, filter databases.TaskFilter, page databases.Page) (*TaskPage[models.ResourceRequest], error) {
	page = page.Normalize()
	items, total, err := s.ResourceRequests.List(ctx, filter, page)
	if err != nil {
		return nil, apierrors.Internal("list resource requests", err)
	}
	return &TaskPage[models.ResourceRequest]{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// ResourceReviewInput is an admin's decision on a pending resource request
type ResourceReviewInput struct {
	Status             models.ResourceRequestStatus `json:"status" validate:"required,oneof=approved partially-approved rejected"`
	Remarks            string                       `json:"remarks" validate:"max=1000"`
	ApprovedQuantities []float64                    `json:"approvedQuantities"`
}

// ReviewResourceRequest approves, partially approves or rejects a request
func (s *TaskService) ReviewResourceRequest(ctx context.Context, reviewer, id primitive.ObjectID, in ResourceReviewInput) (*models.ResourceRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	in.Remarks = strings.TrimSpace(in.Remarks)
	if in.Status == models.ResourceRejected && in.Remarks == "" {
		return nil, apierrors.Validation("remarks", "is required when rejecting a request")
	}
	rr, err := s.ResourceRequests.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("review resource request", err)
	}
	if !models.CanTransitionResourceRequest(rr.Status, in.Status) {
		return nil, apierrors.Conflict("resource request is %s and cannot move to %s", rr.Status, in.Status)
	}

	items := make([]models.ResourceItem, len(rr.Items))
	copy(items, rr.Items)
	switch in.Status {
	case models.ResourceApproved:
		for i := range items {
			items[i].ApprovedQuantity = items[i].Quantity
		}
	case models.ResourcePartiallyApproved:
		if len(in.ApprovedQuantities) != len(items) {
			return nil, apierrors.Validation("approvedQuantities", fmt.Sprintf("must list one quantity for each of the %d items", len(items)))
		}
		var verrs validationErrors
		for i, q := range in.ApprovedQuantities {
			if q < 0 || q > items[i].Quantity {
				verrs.add(fmt.Sprintf("approvedQuantities[%d]", i), "must be between 0 and the requested quantity")
			}
			items[i].ApprovedQuantity = q
		}
		if err := verrs.err(); err != nil {
			return nil, err
		}
	}

	at := now()
	set := bson.M{
		"status":        in.Status,
		"items":         items,
		"reviewedBy":    reviewer,
		"reviewedAt":    at,
		"reviewRemarks": in.Remarks,
	}
	if err := s.ResourceRequests.UpdateIfStatus(ctx, id, rr.Status, set); err != nil {
		return nil, apierrors.Internal("review resource request", err)
	}
	zap.S().Infow("resource request reviewed", "request", rr.RequestID, "status", in.Status)

	rr.Status = in.Status
	rr.Items = items
	rr.ReviewedBy = &reviewer
	rr.ReviewedAt = &at
	rr.ReviewRemarks = in.Remarks
	rr.UpdatedAt = at
	if s.Notifier != nil {
		s.Notifier.Notify(ctx, SystemNotification(rr.RequestedBy,
			"Resource request "+string(in.Status),
			fmt.Sprintf("Request %s (%s) was %s.", rr.RequestID, rr.Title, in.Status)))
	}
	return rr, nil
}

// ResourceStatusInput fulfils or cancels a request
type ResourceStatusInput struct {
	Status models.ResourceRequestStatus `json:"status" validate:"required,oneof=fulfilled cancelled"`
}

// TransitionResourceRequest marks a reviewed request fulfilled or cancels it
func (s *TaskService) TransitionResourceRequest(ctx context.Context, id primitive.ObjectID, in ResourceStatusInput) (*models.ResourceRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	rr, err := s.ResourceRequests.FindByID(ctx, id)
	if err != nil {
		return nil, apierrors.Internal("transition resource request", err)
	}
	if !models.CanTransitionResourceRequest(rr.Status, in.Status) {
		return nil, apierrors.Conflict("resource request is %s and cannot move to %s", rr.Status, in.Status)
	}
	if err := s.ResourceRequests.UpdateIfStatus(ctx, id, rr.Status, bson.M{"status": in.Status}); err != nil {
		return nil, apierrors.Internal("transition resource request", err)
	}
	rr.Status = in.Status
	rr.UpdatedAt = now()
	return rr, nil
}

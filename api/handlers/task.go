package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/api"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/services"
)

// Task handles work orders, inspections and resource requests for officials
type Task struct {
	Service *services.TaskService
}

func taskFilter(r *http.Request) (databases.TaskFilter, error) {
	q := r.URL.Query()
	f := databases.TaskFilter{Status: q.Get("status"), Priority: q.Get("priority")}
	var err error
	if f.AssignedTo, err = optionalObjectID(r, "assignedTo"); err != nil {
		return f, err
	}
	if f.CreatedBy, err = optionalObjectID(r, "createdBy"); err != nil {
		return f, err
	}
	if f.RelatedIssue, err = optionalObjectID(r, "relatedIssue"); err != nil {
		return f, err
	}
	return f, nil
}

func listQuery(r *http.Request) (databases.TaskFilter, databases.Page, error) {
	f, err := taskFilter(r)
	if err != nil {
		return f, databases.Page{}, err
	}
	p, err := pageFrom(r)
	return f, p, err
}

// CreateWorkOrderHandler opens a work order
func (t Task) CreateWorkOrderHandler(w http.ResponseWriter, r *http.Request) {
	var in services.WorkOrderInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid work order", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	wo, err := t.Service.CreateWorkOrder(ctx, caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to create work order", err)
		return
	}
	zap.S().Infow("work order created", "workOrder", wo.WorkOrderID)
	writeJSON(w, http.StatusCreated, wo)
}

// ListWorkOrdersHandler returns a filtered page of work orders
func (t Task) ListWorkOrdersHandler(w http.ResponseWriter, r *http.Request) {
	f, page, err := listQuery(r)
	if err != nil {
		writeError(w, "invalid query", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := t.Service.ListWorkOrders(ctx, f, page)
	if err != nil {
		writeError(w, "failed to list work orders", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// WorkOrderByIDHandler returns one work order
func (t Task) WorkOrderByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid work order id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	wo, err := t.Service.GetWorkOrder(ctx, id)
	if err != nil {
		writeError(w, "failed to get work order", err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// WorkOrderStatusHandler moves a work order to a new status
func (t Task) WorkOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid work order id", err)
		return
	}
	var in services.WorkOrderTransition
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid status change", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	wo, err := t.Service.TransitionWorkOrder(ctx, id, in)
	if err != nil {
		writeError(w, "failed to update work order", err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

// CreateInspectionHandler schedules an inspection
func (t Task) CreateInspectionHandler(w http.ResponseWriter, r *http.Request) {
	var in services.InspectionInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid inspection", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	insp, err := t.Service.CreateInspection(ctx, caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to create inspection", err)
		return
	}
	zap.S().Infow("inspection scheduled", "inspection", insp.InspectionID, "scheduledDate", insp.ScheduledDate)
	writeJSON(w, http.StatusCreated, insp)
}

// ListInspectionsHandler returns a filtered page of inspections
func (t Task) ListInspectionsHandler(w http.ResponseWriter, r *http.Request) {
	f, page, err := listQuery(r)
	if err != nil {
		writeError(w, "invalid query", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := t.Service.ListInspections(ctx, f, page)
	if err != nil {
		writeError(w, "failed to list inspections", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// InspectionByIDHandler returns one inspection
func (t Task) InspectionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid inspection id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	insp, err := t.Service.GetInspection(ctx, id)
	if err != nil {
		writeError(w, "failed to get inspection", err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

// InspectionStatusHandler moves an inspection to a new status
func (t Task) InspectionStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid inspection id", err)
		return
	}
	var in services.InspectionTransition
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid status change", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	insp, err := t.Service.TransitionInspection(ctx, id, in)
	if err != nil {
		writeError(w, "failed to update inspection", err)
		return
	}
	writeJSON(w, http.StatusOK, insp)
}

// CreateResourceRequestHandler files a resource request
func (t Task) CreateResourceRequestHandler(w http.ResponseWriter, r *http.Request) {
	var in services.ResourceRequestInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid resource request", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	rr, err := t.Service.CreateResourceRequest(ctx, caller(r).UserID, in)
	if err != nil {
		writeError(w, "failed to create resource request", err)
		return
	}
	writeJSON(w, http.StatusCreated, rr)
}

// ListResourceRequestsHandler returns a filtered page of resource requests
func (t Task) ListResourceRequestsHandler(w http.ResponseWriter, r *http.Request) {
	f, page, err := listQuery(r)
	if err != nil {
		writeError(w, "invalid query", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := t.Service.ListResourceRequests(ctx, f, page)
	if err != nil {
		writeError(w, "failed to list resource requests", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ResourceRequestByIDHandler returns one resource request
func (t Task) ResourceRequestByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid resource request id", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	rr, err := t.Service.GetResourceRequest(ctx, id)
	if err != nil {
		writeError(w, "failed to get resource request", err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

// ReviewResourceRequestHandler approves, partially approves or rejects a request
func (t Task) ReviewResourceRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid resource request id", err)
		return
	}
	var in services.ResourceReviewInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid review", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	rr, err := t.Service.ReviewResourceRequest(ctx, caller(r).UserID, id, in)
	if err != nil {
		writeError(w, "failed to review resource request", err)
		return
	}
	zap.S().Infow("resource request reviewed", "request", rr.RequestID, "status", rr.Status)
	writeJSON(w, http.StatusOK, rr)
}

// ResourceRequestStatusHandler marks a request fulfilled or cancelled
func (t Task) ResourceRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := objectID(r, "id")
	if err != nil {
		writeError(w, "invalid resource request id", err)
		return
	}
	var in services.ResourceStatusInput
	if err := decode(r, &in); err != nil {
		writeError(w, "invalid status change", err)
		return
	}
	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	rr, err := t.Service.TransitionResourceRequest(ctx, id, in)
	if err != nil {
		writeError(w, "failed to update resource request", err)
		return
	}
	writeJSON(w, http.StatusOK, rr)
}

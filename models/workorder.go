package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkOrderStatus is the lifecycle state of a work order
type WorkOrderStatus string

// Work order statuses
const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderAssigned   WorkOrderStatus = "assigned"
	WorkOrderInProgress WorkOrderStatus = "in-progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderCancelled  WorkOrderStatus = "cancelled"
)

// WorkOrderStatuses lists every work order status
var WorkOrderStatuses = []WorkOrderStatus{
	WorkOrderPending, WorkOrderAssigned, WorkOrderInProgress, WorkOrderCompleted, WorkOrderCancelled,
}

// WorkResource is a material or tool listed on a work order
type WorkResource struct {
	Name     string  `json:"name" bson:"name" validate:"required,max=100"`
	Quantity float64 `json:"quantity" bson:"quantity" validate:"gte=0"`
	Unit     string  `json:"unit,omitempty" bson:"unit,omitempty"`
}

// WorkOrder holds the structure for the workorders collection in mongo
type WorkOrder struct {
	ID             primitive.ObjectID  `json:"_id" bson:"_id"`
	WorkOrderID    string              `json:"workOrderId" bson:"workOrderId"`
	Title          string              `json:"title" bson:"title"`
	Description    string              `json:"description" bson:"description"`
	RelatedIssue   *primitive.ObjectID `json:"relatedIssue,omitempty" bson:"relatedIssue,omitempty"`
	AssignedTo     *primitive.ObjectID `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	CreatedBy      primitive.ObjectID  `json:"createdBy" bson:"createdBy"`
	Priority       Priority            `json:"priority" bson:"priority"`
	Status         WorkOrderStatus     `json:"status" bson:"status"`
	WorkType       string              `json:"workType" bson:"workType"`
	Location       *Location           `json:"location,omitempty" bson:"location,omitempty"`
	DueDate        *time.Time          `json:"dueDate,omitempty" bson:"dueDate,omitempty"`
	EstimatedHours float64             `json:"estimatedHours,omitempty" bson:"estimatedHours,omitempty"`
	ActualHours    float64             `json:"actualHours,omitempty" bson:"actualHours,omitempty"`
	Resources      []WorkResource      `json:"resources" bson:"resources"`
	Notes          string              `json:"notes,omitempty" bson:"notes,omitempty"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
	CreatedAt      time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt" bson:"updatedAt"`
}

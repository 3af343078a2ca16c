package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ResourceRequestStatus is the lifecycle state of a resource request
type ResourceRequestStatus string

// Resource request statuses
const (
	ResourcePending           ResourceRequestStatus = "pending"
	ResourceApproved          ResourceRequestStatus = "approved"
	ResourcePartiallyApproved ResourceRequestStatus = "partially-approved"
	ResourceRejected          ResourceRequestStatus = "rejected"
	ResourceFulfilled         ResourceRequestStatus = "fulfilled"
	ResourceCancelled         ResourceRequestStatus = "cancelled"
)

// ResourceRequestStatuses lists every resource request status
var ResourceRequestStatuses = []ResourceRequestStatus{
	ResourcePending, ResourceApproved, ResourcePartiallyApproved, ResourceRejected, ResourceFulfilled, ResourceCancelled,
}

// ResourceItem is one requested line item
type ResourceItem struct {
	Name             string  `json:"name" bson:"name" validate:"required,max=100"`
	Quantity         float64 `json:"quantity" bson:"quantity" validate:"gt=0"`
	Unit             string  `json:"unit,omitempty" bson:"unit,omitempty"`
	EstimatedCost    float64 `json:"estimatedCost" bson:"estimatedCost" validate:"gte=0"`
	ApprovedQuantity float64 `json:"approvedQuantity,omitempty" bson:"approvedQuantity,omitempty"`
}

// ResourceRequest holds the structure for the resourcerequests collection in mongo
type ResourceRequest struct {
	ID                 primitive.ObjectID    `json:"_id" bson:"_id"`
	RequestID          string                `json:"requestId" bson:"requestId"`
	Title              string                `json:"title" bson:"title"`
	RequestType        string                `json:"requestType" bson:"requestType"`
	Items              []ResourceItem        `json:"items" bson:"items"`
	TotalEstimatedCost float64               `json:"totalEstimatedCost" bson:"totalEstimatedCost"`
	Justification      string                `json:"justification" bson:"justification"`
	RelatedIssue       *primitive.ObjectID   `json:"relatedIssue,omitempty" bson:"relatedIssue,omitempty"`
	RequestedBy        primitive.ObjectID    `json:"requestedBy" bson:"requestedBy"`
	ReviewedBy         *primitive.ObjectID   `json:"reviewedBy,omitempty" bson:"reviewedBy,omitempty"`
	ReviewedAt         *time.Time            `json:"reviewedAt,omitempty" bson:"reviewedAt,omitempty"`
	ReviewRemarks      string                `json:"reviewRemarks,omitempty" bson:"reviewRemarks,omitempty"`
	Priority           Priority              `json:"priority" bson:"priority"`
	RequiredBy         *time.Time            `json:"requiredBy,omitempty" bson:"requiredBy,omitempty"`
	Status             ResourceRequestStatus `json:"status" bson:"status"`
	CreatedAt          time.Time             `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt" bson:"updatedAt"`
}

// TotalCost sums estimated cost times quantity over all items
func TotalCost(items []ResourceItem) float64 {
	var total float64
	for _, it := range items {
		total += it.EstimatedCost * it.Quantity
	}
	return total
}

package databases

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskFilter narrows work order, inspection and resource request listings.
// Zero values match everything.
type TaskFilter struct {
	Status       string
	Priority     string
	AssignedTo   *primitive.ObjectID
	CreatedBy    *primitive.ObjectID
	RelatedIssue *primitive.ObjectID
}

func (f TaskFilter) bson(ownerField string) bson.M {
	m := bson.M{}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Priority != "" {
		m["priority"] = f.Priority
	}
	if f.AssignedTo != nil {
		m["assignedTo"] = *f.AssignedTo
	}
	if f.CreatedBy != nil {
		m[ownerField] = *f.CreatedBy
	}
	if f.RelatedIssue != nil {
		m["relatedIssue"] = *f.RelatedIssue
	}
	return m
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRole is the account type
type UserRole string

// User roles
const (
	UserCitizen   UserRole = "citizen"
	UserOfficial  UserRole = "official"
	UserCommunity UserRole = "community"
)

// DesignationTeamLead grants admin rights to an official
const DesignationTeamLead = "team-lead"

// User holds the structure for the users collection in mongo
type User struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	Name         string             `json:"name" bson:"name"`
	Email        string             `json:"email" bson:"email"`
	PasswordHash string             `json:"-" bson:"password"`
	Role         UserRole           `json:"role" bson:"role"`
	Designation  string             `json:"designation,omitempty" bson:"designation,omitempty"`
	Department   string             `json:"department,omitempty" bson:"department,omitempty"`
	DistrictID   string             `json:"districtId,omitempty" bson:"districtId,omitempty"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

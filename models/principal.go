package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Principal is the authenticated caller of a request
type Principal struct {
	UserID  primitive.ObjectID `json:"userId"`
	Email   string             `json:"email"`
	Role    UserRole           `json:"role"`
	IsAdmin bool               `json:"isAdmin"`
}

// IsOfficial reports whether the caller is a municipal official
func (p Principal) IsOfficial() bool {
	return p.Role == UserOfficial
}

// IsAdminOfficial reports whether the caller may review reports and assign issues
func (p Principal) IsAdminOfficial() bool {
	return p.Role == UserOfficial && p.IsAdmin
}

package models

import (
	"strings"
	"time"
	"unicode"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxCommunityMessages bounds the embedded chat log
const MaxCommunityMessages = 500

// MaxMessageLength is the longest chat message accepted
const MaxMessageLength = 2000

// MemberRole is a user's role inside a community
type MemberRole string

// Member roles
const (
	MemberRoleMember    MemberRole = "member"
	MemberRoleModerator MemberRole = "moderator"
	MemberRoleLeader    MemberRole = "leader"
)

// Valid reports whether r is a known member role
func (r MemberRole) Valid() bool {
	switch r {
	case MemberRoleMember, MemberRoleModerator, MemberRoleLeader:
		return true
	}
	return false
}

// MessageType is the kind of chat message
type MessageType string

// Message types
const (
	MessageText         MessageType = "text"
	MessageImage        MessageType = "image"
	MessageAnnouncement MessageType = "announcement"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage || t == MessageAnnouncement
}

// Member is an entry of Community.Members
type Member struct {
	User     primitive.ObjectID `json:"user" bson:"user"`
	Role     MemberRole         `json:"role" bson:"role"`
	JoinedAt time.Time          `json:"joinedAt" bson:"joinedAt"`
}

// Message is an entry of the bounded community chat log
type Message struct {
	ID        string             `json:"id" bson:"id"`
	Sender    primitive.ObjectID `json:"sender" bson:"sender"`
	Content   string             `json:"content" bson:"content"`
	Type      MessageType        `json:"type" bson:"type"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// CommunityStats are denormalized counters
type CommunityStats struct {
	TotalMembers        int `json:"totalMembers" bson:"totalMembers"`
	TotalIssuesReported int `json:"totalIssuesReported" bson:"totalIssuesReported"`
	TotalIssuesResolved int `json:"totalIssuesResolved" bson:"totalIssuesResolved"`
}

// CommunitySettings control who may join
type CommunitySettings struct {
	AllowJoin bool `json:"allowJoin" bson:"allowJoin"`
	IsPublic  bool `json:"isPublic" bson:"isPublic"`
}

// Community holds the structure for the communities collection in mongo
type Community struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	DistrictCode string             `json:"districtCode" bson:"districtCode"`
	Name         string             `json:"name" bson:"name"`
	State        string             `json:"state" bson:"state"`
	District     string             `json:"district" bson:"district"`
	Description  string             `json:"description,omitempty" bson:"description,omitempty"`
	Members      []Member           `json:"members" bson:"members"`
	Stats        CommunityStats     `json:"stats" bson:"stats"`
	Messages     []Message          `json:"messages,omitempty" bson:"messages"`
	Settings     CommunitySettings  `json:"settings" bson:"settings"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Member returns the membership entry for user, if any
func (c *Community) Member(user primitive.ObjectID) (Member, bool) {
	for _, m := range c.Members {
		if m.User == user {
			return m, true
		}
	}
	return Member{}, false
}

// MembershipResult reports the effect of a join or leave
type MembershipResult struct {
	Changed      bool `json:"changed"`
	TotalMembers int  `json:"totalMembers"`
}

// GenerateDistrictCode derives the community key from the state and district
// names: the first 3 characters of state and first 5 of district, upper cased
// with whitespace removed and hyphen joined. ("Maharashtra", "Navi Mumbai")
// is MAH-NAVI.
func GenerateDistrictCode(state, district string) string {
	return stripSpace(prefix(state, 3)) + "-" + stripSpace(prefix(district, 5))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return strings.ToUpper(string(r))
}

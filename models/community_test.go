package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGenerateDistrictCode(t *testing.T) {
	tests := []struct {
		state, district, want string
	}{
		{"Maharashtra", "Pune", "MAH-PUNE"},
		{"maharashtra", "pune", "MAH-PUNE"},
		{"Tamil Nadu", "Chennai", "TAM-CHENN"},
		{"Uttar Pradesh", "Gautam Buddh Nagar", "UTT-GAUTA"},
		{"Goa", "North Goa", "GOA-NORTH"},
		{"Maharashtra", "Navi Mumbai", "MAH-NAVI"},
		{"Delhi", "New Delhi", "DEL-NEWD"},
		{"West Bengal", "Kolkata", "WES-KOLKA"},
		{"Kerala", "Thiruvananthapuram", "KER-THIRU"},
		{"UP", "Agra", "UP-AGRA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GenerateDistrictCode(tt.state, tt.district))
	}
}

func TestGenerateDistrictCodeIsDeterministic(t *testing.T) {
	first := GenerateDistrictCode("Maharashtra", "Pune")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, GenerateDistrictCode("Maharashtra", "Pune"))
	}
}

func TestCommunityMember(t *testing.T) {
	u1, u2 := primitive.NewObjectID(), primitive.NewObjectID()
	c := Community{Members: []Member{{User: u1, Role: MemberRoleLeader}}}

	m, ok := c.Member(u1)
	assert.True(t, ok)
	assert.Equal(t, MemberRoleLeader, m.Role)

	_, ok = c.Member(u2)
	assert.False(t, ok)
}

func TestMemberRoleValid(t *testing.T) {
	assert.True(t, MemberRoleLeader.Valid())
	assert.True(t, MemberRoleModerator.Valid())
	assert.False(t, MemberRole("mayor").Valid())
}

func TestMessageTypeValid(t *testing.T) {
	assert.True(t, MessageAnnouncement.Valid())
	assert.False(t, MessageType("video").Valid())
}

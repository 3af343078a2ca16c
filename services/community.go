package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/databases"
	"github.com/citizenvoice/citizenvoice-api/models"
)

// CommunityService manages district communities, membership and chat
type CommunityService struct {
	Communities databases.CommunityDatabase
	Users       databases.UserDatabase
	Pusher      Pusher
}

// NewCommunityService wires the community and user stores
func NewCommunityService(communities databases.CommunityDatabase, users databases.UserDatabase, pusher Pusher) *CommunityService {
	return &CommunityService{Communities: communities, Users: users, Pusher: pusher}
}

// DistrictInput names a district by its state and district names
type DistrictInput struct {
	State    string `json:"state" validate:"required,max=100"`
	District string `json:"district" validate:"required,max=100"`
}

// FindOrCreate returns the community for the district, creating it on first
// use. Concurrent callers for the same district get the same community.
func (s *CommunityService) FindOrCreate(ctx context.Context, in DistrictInput) (*models.Community, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	state, district := strings.TrimSpace(in.State), strings.TrimSpace(in.District)
	code := models.GenerateDistrictCode(state, district)
	at := now()
	community, err := s.Communities.FindOrCreate(ctx, models.Community{
		ID:           primitive.NewObjectID(),
		DistrictCode: code,
		Name:         district + " Community",
		State:        state,
		District:     district,
		Description:  "Civic community for " + district + ", " + state,
		Members:      []models.Member{},
		Messages:     []models.Message{},
		Settings:     models.CommunitySettings{AllowJoin: true, IsPublic: true},
		CreatedAt:    at,
		UpdatedAt:    at,
	})
	if err != nil {
		return nil, apierrors.Internal("find or create community", err)
	}
	return community, nil
}

// Get returns a community by district code
func (s *CommunityService) Get(ctx context.Context, code string) (*models.Community, error) {
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("get community", err)
	}
	return community, nil
}

// List returns public communities, optionally within one state
func (s *CommunityService) List(ctx context.Context, state string, page databases.Page) ([]models.Community, error) {
	communities, err := s.Communities.List(ctx, state, page)
	if err != nil {
		return nil, apierrors.Internal("list communities", err)
	}
	return communities, nil
}

// Join adds user to the community as a member and makes it the user's home
// district. Joining twice is a no-op.
func (s *CommunityService) Join(ctx context.Context, code string, user primitive.ObjectID) (*models.MembershipResult, error) {
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("join community", err)
	}
	if _, ok := community.Member(user); ok {
		return &models.MembershipResult{Changed: false, TotalMembers: community.Stats.TotalMembers}, nil
	}
	if !community.Settings.AllowJoin {
		return nil, apierrors.Conflict("community %s is not accepting new members", code)
	}

	changed, err := s.Communities.AddMember(ctx, code, models.Member{User: user, Role: models.MemberRoleMember, JoinedAt: now()})
	if err != nil {
		return nil, apierrors.Internal("join community", err)
	}
	if err := s.Users.SetDistrict(ctx, user, code); err != nil {
		zap.S().Warnw("failed to set user district", "user", user.Hex(), "district", code, "error", err)
	}
	return s.membership(ctx, code, changed)
}

// Leave removes user from the community. An appointed leader has to be
// stepped down with SetMemberRole before leaving.
func (s *CommunityService) Leave(ctx context.Context, code string, user primitive.ObjectID) (*models.MembershipResult, error) {
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("leave community", err)
	}
	member, ok := community.Member(user)
	if !ok {
		return &models.MembershipResult{Changed: false, TotalMembers: community.Stats.TotalMembers}, nil
	}
	if member.Role == models.MemberRoleLeader {
		return nil, apierrors.Conflict("community leaders cannot leave, step down first")
	}
	changed, err := s.Communities.RemoveMember(ctx, code, user)
	if err != nil {
		return nil, apierrors.Internal("leave community", err)
	}
	return s.membership(ctx, code, changed)
}

// SetMemberRole appoints an existing member as leader or moderator, or steps
// them back down to member.
func (s *CommunityService) SetMemberRole(ctx context.Context, code string, user primitive.ObjectID, role models.MemberRole) (*models.Member, error) {
	if !role.Valid() {
		return nil, apierrors.Validation("role", "must be one of member moderator leader")
	}
	changed, err := s.Communities.SetMemberRole(ctx, code, user, role)
	if err != nil {
		return nil, apierrors.Internal("set member role", err)
	}
	if !changed {
		return nil, apierrors.NotFound("member", user.Hex())
	}
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("set member role", err)
	}
	member, _ := community.Member(user)
	return &member, nil
}

func (s *CommunityService) membership(ctx context.Context, code string, changed bool) (*models.MembershipResult, error) {
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("read membership", err)
	}
	return &models.MembershipResult{Changed: changed, TotalMembers: community.Stats.TotalMembers}, nil
}

// MessageInput is a chat message as posted by a member
type MessageInput struct {
	Content string             `json:"content"`
	Type    models.MessageType `json:"type"`
}

// PostMessage appends a message to the community chat. Only members may
// post and only leaders or moderators may announce.
func (s *CommunityService) PostMessage(ctx context.Context, code string, sender primitive.ObjectID, in MessageInput) (*models.Message, error) {
	var verrs validationErrors
	content := strings.TrimSpace(in.Content)
	if content == "" {
		verrs.add("content", "is required")
	} else if len([]rune(content)) > models.MaxMessageLength {
		verrs.add("content", "must be at most 2000 characters")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		verrs.add("type", "must be one of text image announcement")
	}
	if err := verrs.err(); err != nil {
		return nil, err
	}

	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("post message", err)
	}
	member, ok := community.Member(sender)
	if !ok {
		return nil, apierrors.Conflict("only members can post in community %s", code)
	}
	if in.Type == models.MessageAnnouncement && member.Role == models.MemberRoleMember {
		return nil, apierrors.Conflict("only leaders and moderators can send announcements")
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Type:      in.Type,
		CreatedAt: now(),
	}
	if err := s.Communities.AppendMessage(ctx, code, msg); err != nil {
		return nil, apierrors.Internal("post message", err)
	}
	s.broadcast(community, msg)
	return &msg, nil
}

func (s *CommunityService) broadcast(community *models.Community, msg models.Message) {
	if s.Pusher == nil {
		return
	}
	payload := map[string]interface{}{
		"type":         "community_message",
		"districtCode": community.DistrictCode,
		"message":      msg,
	}
	for _, m := range community.Members {
		if m.User != msg.Sender {
			s.Pusher.Push(m.User.Hex(), payload)
		}
	}
}

// Messages returns the newest limit chat messages, oldest first.
// Only members may read them.
func (s *CommunityService) Messages(ctx context.Context, code string, reader primitive.ObjectID, limit int) ([]models.Message, error) {
	community, err := s.Communities.FindByCode(ctx, code)
	if err != nil {
		return nil, apierrors.Internal("read messages", err)
	}
	if _, ok := community.Member(reader); !ok {
		return nil, apierrors.Conflict("only members can read community %s", code)
	}
	msgs := community.Messages
	if limit <= 0 || limit > models.MaxCommunityMessages {
		limit = 50
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}

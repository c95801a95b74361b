package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"groupchat/internal/domain"
	"groupchat/internal/logger"
)

// GroupService runs the group lifecycle. Every operation loads the
// conversation, checks the actor against the group policy, applies one
// scoped mutation, records a system message and then notifies the room.
type GroupService struct {
	conversations domain.ConversationRepository
	users         domain.UserRepository
	notifier      Notifier
	rooms         RoomSync
	now           func() time.Time

	MaxMessagesPerConversation int
}

func NewGroupService(
	conversations domain.ConversationRepository,
	users domain.UserRepository,
	notifier Notifier,
	rooms RoomSync,
	maxMessages int,
) *GroupService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if rooms == nil {
		rooms = nopRooms{}
	}
	return &GroupService{
		conversations:              conversations,
		users:                      users,
		notifier:                   notifier,
		rooms:                      rooms,
		now:                        time.Now,
		MaxMessagesPerConversation: maxMessages,
	}
}

type CreateGroupInput struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Avatar      string               `json:"avatar,omitempty"`
	MemberIDs   []string             `json:"member_ids"`
	Settings    domain.GroupSettings `json:"settings,omitempty"`
}

// Create makes a group with the actor as admin and everyone in MemberIDs
// as members. Live connections of all participants join the room at once.
func (s *GroupService) Create(ctx context.Context, actorID string, in CreateGroupInput) (*domain.Conversation, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", domain.ErrInvalidRequest)
	}
	memberIDs := uniqueExcept(in.MemberIDs, actorID)
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("member list is empty: %w", domain.ErrInvalidRequest)
	}
	if err := in.Settings.Validate(); err != nil {
		return nil, err
	}

	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	members, err := s.activeUsers(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	participants := make([]domain.Participant, 0, len(members)+1)
	participants = append(participants, participantOf(actor, domain.RoleAdmin, now))
	for _, u := range members {
		participants = append(participants, participantOf(u, domain.RoleMember, now))
	}

	sys := systemMessage(actorID, fmt.Sprintf("%s created the group %q", nameOf(actor), name), now)
	conv := &domain.Conversation{
		ID:           newID(),
		Type:         domain.ConversationGroup,
		Name:         name,
		Avatar:       in.Avatar,
		Description:  in.Description,
		Participants: participants,
		Settings:     domain.DefaultGroupSettings().Merge(in.Settings),
		Messages:     []domain.Message{sys},
		LastMessage:  lastOf(sys),
		CreatedBy:    actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}

	for _, p := range conv.Participants {
		s.rooms.JoinUser(p.UserID, conv.ID)
	}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupCreate), GroupEvent{
		ConversationID: conv.ID,
		ActorID:        actorID,
		Conversation:   conv,
	})
	return conv, nil
}

// AddMembers adds users that are not participants yet.
func (s *GroupService) AddMembers(ctx context.Context, actorID, conversationID string, userIDs []string) (*GroupEvent, error) {
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if !domain.CanPerform(conv.Settings, actor.Role, domain.PolicyAddMember) {
		return nil, domain.ErrPermissionDenied
	}

	var fresh []string
	for _, id := range uniqueExcept(userIDs, actorID) {
		if !conv.IsParticipant(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("no new members: %w", domain.ErrInvalidRequest)
	}
	users, err := s.activeUsers(ctx, fresh)
	if err != nil {
		return nil, err
	}

	now := s.now()
	added := make([]domain.Participant, len(users))
	names := make([]string, len(users))
	for i, u := range users {
		added[i] = participantOf(u, domain.RoleMember, now)
		names[i] = nameOf(u)
	}
	if err := s.conversations.AddParticipants(ctx, conv.ID, added); err != nil {
		return nil, err
	}
	sys := s.record(ctx, conv.ID, actorID, fmt.Sprintf("%s added %s", actor.name(), strings.Join(names, ", ")), now)

	for _, id := range fresh {
		s.rooms.JoinUser(id, conv.ID)
	}
	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, UserIDs: fresh, SystemMessage: sys}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupAddMember), ev)
	return ev, nil
}

// RemoveMember removes targetID from the group. An admin can only be
// removed by another admin.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, conversationID, targetID string) (*GroupEvent, error) {
	if targetID == "" || targetID == actorID {
		return nil, fmt.Errorf("use leave to remove yourself: %w", domain.ErrInvalidRequest)
	}
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	target, ok := conv.Participant(targetID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !domain.CanPerform(conv.Settings, actor.Role, domain.PolicyRemoveMember) ||
		!domain.CanActOnTarget(actor.Role, target.Role) {
		return nil, domain.ErrPermissionDenied
	}

	now := s.now()
	if err := s.conversations.RemoveParticipant(ctx, conv.ID, targetID); err != nil {
		return nil, err
	}
	sys := s.record(ctx, conv.ID, actorID, fmt.Sprintf("%s removed %s", actor.name(), participantName(*target)), now)

	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, UserIDs: []string{targetID}, SystemMessage: sys}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupRemoveMember), ev)
	s.rooms.LeaveUser(targetID, conv.ID)
	s.notifier.EmitToUser(ctx, targetID, EventGroupRemoved, ev)
	s.clearUnread(ctx, targetID, conv.ID)
	return ev, nil
}

// ChangeRole assigns role to targetID. Granting admin needs an admin actor
// and the last admin cannot demote themself.
func (s *GroupService) ChangeRole(ctx context.Context, actorID, conversationID, targetID string, role domain.Role) (*GroupEvent, error) {
	if !role.Valid() || targetID == "" {
		return nil, domain.ErrInvalidRequest
	}
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	target, ok := conv.Participant(targetID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !domain.CanPerform(conv.Settings, actor.Role, domain.PolicyAssignRole) ||
		!domain.CanActOnTarget(actor.Role, target.Role) {
		return nil, domain.ErrPermissionDenied
	}
	if role == domain.RoleAdmin && actor.Role != domain.RoleAdmin {
		return nil, domain.ErrPermissionDenied
	}
	if target.Role == domain.RoleAdmin && role != domain.RoleAdmin && conv.CountRole(domain.RoleAdmin) == 1 {
		return nil, fmt.Errorf("group needs an admin: %w", domain.ErrInvalidRequest)
	}

	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, UserIDs: []string{targetID}, Role: role}
	if target.Role == role {
		return ev, nil
	}
	now := s.now()
	if err := s.conversations.SetRole(ctx, conv.ID, targetID, role); err != nil {
		return nil, err
	}
	ev.SystemMessage = s.record(ctx, conv.ID, actorID,
		fmt.Sprintf("%s made %s %s", actor.name(), participantName(*target), role), now)
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupChangeRole), ev)
	return ev, nil
}

// UpdateSettings merges patch into the group's policy table. Only admins
// may change settings, whatever the table says.
func (s *GroupService) UpdateSettings(ctx context.Context, actorID, conversationID string, patch domain.GroupSettings) (*GroupEvent, error) {
	if len(patch) == 0 {
		return nil, domain.ErrInvalidRequest
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if !domain.CanUpdateSettings(actor.Role) {
		return nil, domain.ErrPermissionDenied
	}

	merged := conv.Settings.Merge(patch)
	now := s.now()
	if err := s.conversations.SetSettings(ctx, conv.ID, merged); err != nil {
		return nil, err
	}
	sys := s.record(ctx, conv.ID, actorID, fmt.Sprintf("%s changed the group settings", actor.name()), now)
	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, Settings: merged, SystemMessage: sys}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupUpdateSettings), ev)
	return ev, nil
}

// UpdateInfo changes the group name, avatar or description.
func (s *GroupService) UpdateInfo(ctx context.Context, actorID, conversationID string, info domain.GroupInfo) (*GroupEvent, error) {
	if info.Empty() {
		return nil, domain.ErrInvalidRequest
	}
	if info.Name != nil {
		name := strings.TrimSpace(*info.Name)
		if name == "" {
			return nil, fmt.Errorf("group name is required: %w", domain.ErrInvalidRequest)
		}
		info.Name = &name
	}
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if !domain.CanPerform(conv.Settings, actor.Role, domain.PolicyUpdateGroupInfo) {
		return nil, domain.ErrPermissionDenied
	}

	now := s.now()
	if err := s.conversations.UpdateInfo(ctx, conv.ID, info); err != nil {
		return nil, err
	}
	text := fmt.Sprintf("%s updated the group info", actor.name())
	if info.Name != nil {
		text = fmt.Sprintf("%s renamed the group to %q", actor.name(), *info.Name)
	}
	sys := s.record(ctx, conv.ID, actorID, text, now)
	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, Info: &info, SystemMessage: sys}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupUpdateInfo), ev)
	return ev, nil
}

// Leave removes the actor from the group. When the last admin leaves a
// co-admin is promoted, or else the first remaining participant. When the
// actor is the only participant the group is dissolved instead.
func (s *GroupService) Leave(ctx context.Context, actorID, conversationID string) (*GroupEvent, error) {
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	if len(conv.Participants) == 1 {
		sys := s.record(ctx, conv.ID, actorID, fmt.Sprintf("%s left and the group was dissolved", actor.name()), now)
		if err := s.conversations.Dissolve(ctx, conv.ID, actorID, now); err != nil {
			return nil, err
		}
		ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, Dissolved: true, SystemMessage: sys}
		s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupLeave), ev)
		s.rooms.CloseRoom(conv.ID)
		s.clearUnread(ctx, actorID, conv.ID)
		return ev, nil
	}

	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID}
	var successor *domain.Participant
	if actor.Role == domain.RoleAdmin && conv.CountRole(domain.RoleAdmin) == 1 {
		successor = pickSuccessor(conv, actorID)
		if err := s.conversations.SetRole(ctx, conv.ID, successor.UserID, domain.RoleAdmin); err != nil {
			return nil, err
		}
		ev.PromotedID = successor.UserID
	}
	if err := s.conversations.RemoveParticipant(ctx, conv.ID, actorID); err != nil {
		return nil, err
	}

	text := fmt.Sprintf("%s left the group", actor.name())
	if successor != nil {
		text += fmt.Sprintf("; %s is now the admin", participantName(*successor))
	}
	ev.SystemMessage = s.record(ctx, conv.ID, actorID, text, now)

	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupLeave), ev)
	s.rooms.LeaveUser(actorID, conv.ID)
	s.clearUnread(ctx, actorID, conv.ID)
	return ev, nil
}

// Dissolve soft-deletes the group and empties its room. Admin only.
func (s *GroupService) Dissolve(ctx context.Context, actorID, conversationID string) (*GroupEvent, error) {
	conv, actor, err := s.loadGroup(ctx, actorID, conversationID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrPermissionDenied
	}
	now := s.now()
	sys := s.record(ctx, conv.ID, actorID, fmt.Sprintf("%s dissolved the group", actor.name()), now)
	if err := s.conversations.Dissolve(ctx, conv.ID, actorID, now); err != nil {
		return nil, err
	}
	ev := &GroupEvent{ConversationID: conv.ID, ActorID: actorID, Dissolved: true, SystemMessage: sys}
	s.notifier.EmitToRoom(ctx, conv.ID, success(EventGroupDissolve), ev)
	s.rooms.CloseRoom(conv.ID)
	return ev, nil
}

type member struct{ domain.Participant }

func (m member) name() string { return participantName(m.Participant) }

func (s *GroupService) loadGroup(ctx context.Context, actorID, conversationID string) (*domain.Conversation, member, error) {
	conv, err := loadLive(ctx, s.conversations, actorID, conversationID)
	if err != nil {
		return nil, member{}, err
	}
	if !conv.IsGroup() {
		return nil, member{}, fmt.Errorf("not a group conversation: %w", domain.ErrInvalidRequest)
	}
	p, _ := conv.Participant(actorID)
	return conv, member{*p}, nil
}

// record appends a system message narrating a change. The change itself is
// already stored, so a failure here is logged rather than returned.
func (s *GroupService) record(ctx context.Context, conversationID, actorID, text string, at time.Time) *domain.Message {
	msg := systemMessage(actorID, text, at)
	if err := s.conversations.AppendMessage(ctx, conversationID, msg, *lastOf(msg), s.MaxMessagesPerConversation); err != nil {
		logger.Log.Error("system_message_failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
		return nil
	}
	return &msg
}

func (s *GroupService) clearUnread(ctx context.Context, userID, conversationID string) {
	if err := s.users.ClearUnread(ctx, userID, conversationID); err != nil && !isNotFound(err) {
		logger.Log.Warn("clear_unread_failed",
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

func (s *GroupService) activeUsers(ctx context.Context, ids []string) ([]*domain.User, error) {
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !u.IsActive {
			return nil, domain.ErrNotFound
		}
		out = append(out, u)
	}
	return out, nil
}

func pickSuccessor(conv *domain.Conversation, leaving string) *domain.Participant {
	var first *domain.Participant
	for i := range conv.Participants {
		p := &conv.Participants[i]
		if p.UserID == leaving {
			continue
		}
		if p.Role == domain.RoleCoAdmin {
			return p
		}
		if first == nil {
			first = p
		}
	}
	return first
}

func systemMessage(actorID, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:              newID(),
		SenderID:        actorID,
		Content:         text,
		Reactions:       []domain.Reaction{},
		ReadBy:          []domain.ReadReceipt{{UserID: actorID, ReadAt: at}},
		DeletedBy:       []string{},
		IsSystemMessage: true,
		SendTimestamp:   at,
	}
}

func lastOf(m domain.Message) *domain.LastMessage {
	return &domain.LastMessage{MessageID: m.ID, SenderID: m.SenderID, Content: m.Content, Timestamp: m.SendTimestamp}
}

func uniqueExcept(ids []string, skip string) []string {
	seen := map[string]bool{skip: true}
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func nameOf(u *domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func participantName(p domain.Participant) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

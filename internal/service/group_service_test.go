package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
	"groupchat/internal/service"
)

func roleOf(t *testing.T, c *domain.Conversation, name string) domain.Role {
	t.Helper()
	p, ok := c.Participant(uid(name))
	require.True(t, ok, "%s is not a participant", name)
	return p.Role
}

func TestOpenPrivateInvariants(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	first := f.private(t, "alice", "bob")
	again := f.private(t, "bob", "alice")
	assert.Equal(t, first.ID, again.ID)

	stored := f.conv(t, first.ID)
	assert.Len(t, stored.Participants, 2)
	assert.Nil(t, stored.Settings)
	for _, p := range stored.Participants {
		assert.Empty(t, p.Role)
	}

	_, err := f.conversations.OpenPrivate(f.ctx, uid("alice"), uid("alice"))
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGroupOpsRejectPrivate(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.private(t, "alice", "bob")

	_, err := f.groups.AddMembers(f.ctx, uid("alice"), c.ID, []string{uid("carol")})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.groups.Leave(f.ctx, uid("alice"), c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Len(t, f.conv(t, c.ID).Participants, 2)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	_, err := f.groups.Create(f.ctx, uid("alice"), service.CreateGroupInput{Name: "empty"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = f.groups.Create(f.ctx, uid("alice"), service.CreateGroupInput{Name: "x", MemberIDs: []string{"u-ghost"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	c := f.group(t, "alice", "bob", "carol", "bob")
	stored := f.conv(t, c.ID)
	require.Len(t, stored.Participants, 3)
	assert.Equal(t, domain.RoleAdmin, roleOf(t, stored, "alice"))
	assert.Equal(t, domain.RoleMember, roleOf(t, stored, "bob"))
	assert.Equal(t, domain.DefaultGroupSettings(), stored.Settings)

	require.Len(t, stored.Messages, 1)
	assert.True(t, stored.Messages[0].IsSystemMessage)
	assert.Equal(t, stored.Messages[0].ID, stored.LastMessage.MessageID)

	for _, name := range []string{"alice", "bob", "carol"} {
		assert.True(t, f.hub.InRoom(f.conns[name], c.ID), name)
		assert.Equal(t, 1, f.conns[name].count("group.create.success"), name)
	}
}

func TestAddMembersPolicy(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	c := f.group(t, "alice", "bob")

	_, err := f.groups.AddMembers(f.ctx, uid("bob"), c.ID, []string{uid("carol")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.groups.AddMembers(f.ctx, uid("alice"), c.ID, []string{uid("bob")})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest, "already a member")

	_, err = f.groups.UpdateSettings(f.ctx, uid("alice"), c.ID, domain.GroupSettings{
		domain.PolicyAddMember: {domain.RoleAdmin, domain.RoleCoAdmin, domain.RoleMember},
	})
	require.NoError(t, err)

	ev, err := f.groups.AddMembers(f.ctx, uid("bob"), c.ID, []string{uid("carol"), uid("dave")})
	require.NoError(t, err)
	assert.Equal(t, []string{uid("carol"), uid("dave")}, ev.UserIDs)
	assert.True(t, f.hub.InRoom(f.conns["dave"], c.ID))
	assert.Len(t, f.conv(t, c.ID).Participants, 4)
}

func TestUpdateSettingsAdminOnly(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.group(t, "alice", "bob")
	_, err := f.groups.ChangeRole(f.ctx, uid("alice"), c.ID, uid("bob"), domain.RoleCoAdmin)
	require.NoError(t, err)

	_, err = f.groups.UpdateSettings(f.ctx, uid("bob"), c.ID, domain.GroupSettings{
		domain.PolicyUpdateGroupInfo: {domain.RoleCoAdmin},
	})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.groups.UpdateSettings(f.ctx, uid("alice"), c.ID, domain.GroupSettings{"WHO_CAN_DANCE": {domain.RoleAdmin}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestSoleAdminProtection(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.group(t, "alice", "bob", "carol")
	_, err := f.groups.ChangeRole(f.ctx, uid("alice"), c.ID, uid("bob"), domain.RoleCoAdmin)
	require.NoError(t, err)

	_, err = f.groups.RemoveMember(f.ctx, uid("bob"), c.ID, uid("alice"))
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.groups.ChangeRole(f.ctx, uid("bob"), c.ID, uid("alice"), domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.groups.ChangeRole(f.ctx, uid("bob"), c.ID, uid("carol"), domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.groups.ChangeRole(f.ctx, uid("alice"), c.ID, uid("alice"), domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Equal(t, domain.RoleAdmin, roleOf(t, f.conv(t, c.ID), "alice"))

	// Another admin may act on an admin.
	_, err = f.groups.ChangeRole(f.ctx, uid("alice"), c.ID, uid("carol"), domain.RoleAdmin)
	require.NoError(t, err)
	_, err = f.groups.RemoveMember(f.ctx, uid("carol"), c.ID, uid("alice"))
	require.NoError(t, err)
	assert.False(t, f.conv(t, c.ID).IsParticipant(uid("alice")))
}

func TestRemoveMemberNotifiesTarget(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.group(t, "alice", "bob", "carol")
	f.send(t, "alice", c.ID, "hi all")
	require.Len(t, f.user(t, "bob").UnreadConversations, 1)

	_, err := f.groups.RemoveMember(f.ctx, uid("alice"), c.ID, uid("bob"))
	require.NoError(t, err)

	assert.False(t, f.hub.InRoom(f.conns["bob"], c.ID))
	assert.Equal(t, 1, f.conns["bob"].count("group.removed"))
	assert.Equal(t, 1, f.conns["bob"].count("group.remove-member.success"))
	assert.Equal(t, 1, f.conns["carol"].count("group.remove-member.success"))
	assert.Empty(t, f.user(t, "bob").UnreadConversations)

	_, err = f.messages.Send(f.ctx, uid("bob"), service.SendInput{ConversationID: c.ID, Content: "still here?"})
	assert.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = f.groups.RemoveMember(f.ctx, uid("alice"), c.ID, uid("bob"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateInfo(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.group(t, "alice", "bob")
	name := "renamed"

	_, err := f.groups.UpdateInfo(f.ctx, uid("bob"), c.ID, domain.GroupInfo{Name: &name})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	_, err = f.groups.UpdateInfo(f.ctx, uid("alice"), c.ID, domain.GroupInfo{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	ev, err := f.groups.UpdateInfo(f.ctx, uid("alice"), c.ID, domain.GroupInfo{Name: &name})
	require.NoError(t, err)
	require.NotNil(t, ev.SystemMessage)
	stored := f.conv(t, c.ID)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, ev.SystemMessage.ID, stored.LastMessage.MessageID)
}

func TestLeavePromotesFirstRemaining(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.group(t, "alice", "bob", "carol")

	ev, err := f.groups.Leave(f.ctx, uid("alice"), c.ID)
	require.NoError(t, err)
	assert.Equal(t, uid("bob"), ev.PromotedID)

	stored := f.conv(t, c.ID)
	assert.False(t, stored.IsParticipant(uid("alice")))
	assert.Equal(t, domain.RoleAdmin, roleOf(t, stored, "bob"))
	assert.Equal(t, domain.RoleMember, roleOf(t, stored, "carol"))
	assert.False(t, f.hub.InRoom(f.conns["alice"], c.ID))
	assert.True(t, f.hub.InRoom(f.conns["carol"], c.ID))
	assert.Equal(t, 1, f.conns["carol"].count("group.leave.success"))
}

func TestLeavePrefersCoAdmin(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.group(t, "alice", "bob", "carol")
	_, err := f.groups.ChangeRole(f.ctx, uid("alice"), c.ID, uid("carol"), domain.RoleCoAdmin)
	require.NoError(t, err)

	ev, err := f.groups.Leave(f.ctx, uid("alice"), c.ID)
	require.NoError(t, err)
	assert.Equal(t, uid("carol"), ev.PromotedID)
	assert.Equal(t, domain.RoleAdmin, roleOf(t, f.conv(t, c.ID), "carol"))
}

func TestMemberLeaveKeepsAdmin(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	c := f.group(t, "alice", "bob", "carol")

	ev, err := f.groups.Leave(f.ctx, uid("bob"), c.ID)
	require.NoError(t, err)
	assert.Empty(t, ev.PromotedID)
	assert.Equal(t, domain.RoleAdmin, roleOf(t, f.conv(t, c.ID), "alice"))
}

func TestSoloLeaveDissolves(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.group(t, "alice", "bob")
	_, err := f.groups.Leave(f.ctx, uid("bob"), c.ID)
	require.NoError(t, err)

	ev, err := f.groups.Leave(f.ctx, uid("alice"), c.ID)
	require.NoError(t, err)
	assert.True(t, ev.Dissolved)
	require.NotNil(t, ev.SystemMessage)
	assert.True(t, ev.SystemMessage.IsSystemMessage)

	stored := f.conv(t, c.ID)
	assert.True(t, stored.Dissolved)
	assert.Equal(t, uid("alice"), stored.DissolvedBy)
	assert.Empty(t, f.hub.RoomMembers(c.ID))

	last := stored.Messages[len(stored.Messages)-1]
	assert.True(t, last.IsSystemMessage)
	assert.Equal(t, ev.SystemMessage.ID, last.ID)
	assert.Contains(t, last.Content, "dissolved")
}

func TestDissolve(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	c := f.group(t, "alice", "bob")

	_, err := f.groups.Dissolve(f.ctx, uid("bob"), c.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.groups.Dissolve(f.ctx, uid("alice"), c.ID)
	require.NoError(t, err)
	assert.True(t, f.conv(t, c.ID).Dissolved)
	assert.Empty(t, f.hub.RoomMembers(c.ID))
	assert.Equal(t, 1, f.conns["bob"].count("group.dissolve.success"))

	_, err = f.messages.Send(f.ctx, uid("bob"), service.SendInput{ConversationID: c.ID, Content: "hello?"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.groups.Dissolve(f.ctx, uid("alice"), c.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.conversations.ListForUser(f.ctx, uid("bob"))
	require.NoError(t, err)
	assert.Empty(t, list)
}

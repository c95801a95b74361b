package domain

import "time"

// IsGroup reports whether c is a group conversation.
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// Participant returns the participant entry for userID.
func (c *Conversation) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

// IsParticipant reports whether userID is a current participant.
func (c *Conversation) IsParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

// ParticipantIDs returns the user ids of all participants in order.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		ids[i] = p.UserID
	}
	return ids
}

// CountRole returns how many participants hold role.
func (c *Conversation) CountRole(role Role) int {
	n := 0
	for _, p := range c.Participants {
		if p.Role == role {
			n++
		}
	}
	return n
}

// Message returns the embedded message with id.
func (c *Conversation) Message(id string) (*Message, bool) {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return &c.Messages[i], true
		}
	}
	return nil, false
}

// PendingReadsFor counts messages userID has not read and did not send.
func (c *Conversation) PendingReadsFor(userID string) int {
	n := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.SenderID != userID && !m.IsReadBy(userID) {
			n++
		}
	}
	return n
}

// IsReadBy reports whether userID has a read receipt on m.
func (m *Message) IsReadBy(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// IsDeletedFor reports whether userID hid m for themself.
func (m *Message) IsDeletedFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// HasReaction reports whether userID already reacted with typ.
func (m *Message) HasReaction(userID, typ string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Type == typ {
			return true
		}
	}
	return false
}

// The Apply* methods are the field-scoped mutations shared by stores that
// persist the aggregate as a whole document. Each touches only the fields
// the matching repository operation names.

// ApplyAppend appends m, replaces the last-message summary and trims the
// message list to the newest keep entries when keep > 0.
func (c *Conversation) ApplyAppend(m Message, last LastMessage, keep int, at time.Time) {
	c.Messages = append(c.Messages, m)
	if keep > 0 && len(c.Messages) > keep {
		c.Messages = append([]Message(nil), c.Messages[len(c.Messages)-keep:]...)
	}
	c.LastMessage = &last
	c.UpdatedAt = at
}

// ApplyMarkRead adds a read receipt for userID on every message sent by
// someone else that userID has not read yet. It returns how many were added.
func (c *Conversation) ApplyMarkRead(userID string, at time.Time) int {
	n := 0
	for i := range c.Messages {
		m := &c.Messages[i]
		if m.SenderID == userID || m.IsReadBy(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
		n++
	}
	return n
}

// ApplyDeletedBy adds userID to the message's deleted_by set. It fails with
// ErrAlreadyDeleted when userID is already there.
func (c *Conversation) ApplyDeletedBy(messageID, userID string) error {
	m, ok := c.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	if m.IsDeletedFor(userID) {
		return ErrAlreadyDeleted
	}
	m.DeletedBy = append(m.DeletedBy, userID)
	return nil
}

// ApplyRevoke flags the message revoked and masks the last-message summary
// when it points at the same message. A message is revoked at most once.
func (c *Conversation) ApplyRevoke(messageID, placeholder string) error {
	m, ok := c.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	if m.IsRevoked {
		return ErrAlreadyRevoked
	}
	m.IsRevoked = true
	if c.LastMessage != nil && c.LastMessage.MessageID == messageID {
		c.LastMessage.Content = placeholder
	}
	return nil
}

// ApplyEdit replaces the message content and keeps the summary in step.
func (c *Conversation) ApplyEdit(messageID, content string) error {
	m, ok := c.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	m.Content = content
	m.IsEdited = true
	if c.LastMessage != nil && c.LastMessage.MessageID == messageID {
		c.LastMessage.Content = content
	}
	return nil
}

// ApplyAddReaction adds r unless the same (user, type) pair exists.
func (c *Conversation) ApplyAddReaction(messageID string, r Reaction) error {
	m, ok := c.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	if !m.HasReaction(r.UserID, r.Type) {
		m.Reactions = append(m.Reactions, r)
	}
	return nil
}

// ApplyRemoveReaction drops the (user, type) reaction if present.
func (c *Conversation) ApplyRemoveReaction(messageID, userID, typ string) error {
	m, ok := c.Message(messageID)
	if !ok {
		return ErrNotFound
	}
	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Type == typ {
			continue
		}
		kept = append(kept, r)
	}
	m.Reactions = kept
	return nil
}

// ApplyAddParticipants appends participants that are not members yet.
func (c *Conversation) ApplyAddParticipants(ps []Participant, at time.Time) {
	for _, p := range ps {
		if !c.IsParticipant(p.UserID) {
			c.Participants = append(c.Participants, p)
		}
	}
	c.UpdatedAt = at
}

// ApplyRemoveParticipant drops userID from the participant list.
func (c *Conversation) ApplyRemoveParticipant(userID string, at time.Time) {
	kept := c.Participants[:0]
	for _, p := range c.Participants {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	c.Participants = kept
	c.UpdatedAt = at
}

// ApplySetRole changes the role of userID.
func (c *Conversation) ApplySetRole(userID string, role Role, at time.Time) error {
	p, ok := c.Participant(userID)
	if !ok {
		return ErrNotFound
	}
	p.Role = role
	c.UpdatedAt = at
	return nil
}

// ApplySettings replaces the group settings map.
func (c *Conversation) ApplySettings(s GroupSettings, at time.Time) {
	c.Settings = s
	c.UpdatedAt = at
}

// ApplyInfo sets the group metadata fields present in info.
func (c *Conversation) ApplyInfo(info GroupInfo, at time.Time) {
	if info.Name != nil {
		c.Name = *info.Name
	}
	if info.Avatar != nil {
		c.Avatar = *info.Avatar
	}
	if info.Description != nil {
		c.Description = *info.Description
	}
	c.UpdatedAt = at
}

// ApplyDissolve soft-deletes the conversation.
func (c *Conversation) ApplyDissolve(actorID string, at time.Time) {
	c.Dissolved = true
	c.DissolvedAt = &at
	c.DissolvedBy = actorID
	c.UpdatedAt = at
}

// ViewFor returns a copy of c as userID should see it: messages they hid
// are dropped and revoked messages lose their content and files.
func (c *Conversation) ViewFor(userID string) *Conversation {
	out := c.Clone()
	msgs := out.Messages[:0]
	for _, m := range out.Messages {
		if m.IsDeletedFor(userID) {
			continue
		}
		if m.IsRevoked {
			m.Content = ""
			m.Files = nil
		}
		msgs = append(msgs, m)
	}
	out.Messages = msgs
	return out
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]Participant(nil), c.Participants...)
	if c.Settings != nil {
		out.Settings = make(GroupSettings, len(c.Settings))
		for k, roles := range c.Settings {
			out.Settings[k] = append([]Role(nil), roles...)
		}
	}
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.DissolvedAt != nil {
		at := *c.DissolvedAt
		out.DissolvedAt = &at
	}
	return &out
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Files = append([]File(nil), m.Files...)
	m.Reactions = append([]Reaction(nil), m.Reactions...)
	m.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	m.DeletedBy = append([]string(nil), m.DeletedBy...)
	return m
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	out := *u
	if u.Email != nil {
		e := *u.Email
		out.Email = &e
	}
	out.UnreadConversations = append([]UnreadEntry(nil), u.UnreadConversations...)
	return &out
}

// ApplyBumpUnread removes the entry for the same conversation and pushes
// entry to the front of the list.
func (u *User) ApplyBumpUnread(entry UnreadEntry) {
	u.ApplyClearUnread(entry.ConversationID)
	u.UnreadConversations = append([]UnreadEntry{entry}, u.UnreadConversations...)
}

// ApplyClearUnread removes the entry for conversationID.
func (u *User) ApplyClearUnread(conversationID string) {
	kept := make([]UnreadEntry, 0, len(u.UnreadConversations))
	for _, e := range u.UnreadConversations {
		if e.ConversationID != conversationID {
			kept = append(kept, e)
		}
	}
	u.UnreadConversations = kept
}

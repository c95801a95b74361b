package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"groupchat/internal/domain"
)

func TestNormalizeFillsArrays(t *testing.T) {
	c := normalize(&domain.Conversation{ID: "c1", Messages: []domain.Message{{ID: "m1"}}})

	assert.NotNil(t, c.Participants)
	assert.NotNil(t, c.Messages[0].ReadBy)
	assert.NotNil(t, c.Messages[0].Reactions)
	assert.NotNil(t, c.Messages[0].DeletedBy)
}

func TestConversationDocumentShape(t *testing.T) {
	c := normalize(&domain.Conversation{
		ID:       "c1",
		Type:     domain.ConversationGroup,
		Settings: domain.DefaultGroupSettings(),
		Messages: []domain.Message{{ID: "m1", SenderID: "a"}},
	})
	raw, err := bson.Marshal(c)
	assert.NoError(t, err)

	var doc bson.M
	assert.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "c1", doc["_id"])
	assert.Len(t, doc["messages"], 1)

	var back domain.Conversation
	assert.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, back.Settings[domain.PolicyAssignRole])
}

func TestMessageFilter(t *testing.T) {
	assert.Equal(t, bson.M{"_id": "c1", "messages.id": "m1"}, messageFilter("c1", "m1"))
}

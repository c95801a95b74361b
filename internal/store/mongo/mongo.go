// Package mongo stores users and conversations in MongoDB. Conversation
// mutations are single field-scoped updates ($push, $pull, $addToSet, $set
// with positional and filtered operators); the aggregate is never replaced.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"groupchat/internal/domain"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
)

// caseInsensitive matches usernames and emails regardless of case.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Sealer encrypts message bodies at rest. security.Encryptor satisfies it.
type Sealer interface {
	Encrypt(plain string) (string, error)
	SealMessage(m *domain.Message) error
	SealConversation(c *domain.Conversation) error
	OpenConversation(c *domain.Conversation) error
}

// Connect dials uri and verifies the deployment is reachable.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

// Migrate creates the indexes the repositories rely on.
func Migrate(ctx context.Context, db *mongo.Database) error {
	users := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
	}
	if _, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, users); err != nil {
		return fmt.Errorf("migrate users indexes: %w", err)
	}
	convs := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants.user_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "participants.user_id", Value: 1}}},
	}
	if _, err := db.Collection(conversationsCollection).Indexes().CreateMany(ctx, convs); err != nil {
		return fmt.Errorf("migrate conversations indexes: %w", err)
	}
	return nil
}

// New returns the user and conversation repositories over db.
func New(db *mongo.Database, sealer Sealer) (*UserRepo, *ConversationRepo) {
	return NewUserRepo(db), NewConversationRepo(db, sealer)
}

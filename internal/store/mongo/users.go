package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"groupchat/internal/domain"
)

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{coll: db.Collection(usersCollection)}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	doc := u.Clone()
	if doc.UnreadConversations == nil {
		doc.UnreadConversations = []domain.UnreadEntry{}
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"username": username})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetCollation(caseInsensitive)).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	return &u, nil
}

func (r *UserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "username", Value: 1}}).
		SetSkip(int64(offset))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "list active users")
	}
	out := make([]*domain.User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode users")
	}
	return out, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) error {
	set := bson.M{}
	if patch.DisplayName != nil {
		set["display_name"] = *patch.DisplayName
	}
	if patch.Avatar != nil {
		set["avatar"] = *patch.Avatar
	}
	if patch.Bio != nil {
		set["bio"] = *patch.Bio
	}
	if len(set) == 0 {
		_, err := r.GetByID(ctx, id)
		return err
	}
	return r.update(ctx, id, bson.M{"$set": set})
}

func (r *UserRepo) SoftDelete(ctx context.Context, id string) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"is_active": false}})
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"online_status": online, "last_seen": at}})
}

// BumpUnread pulls the conversation's entry and pushes the new one at the
// head of the list. MongoDB rejects $pull and $push on the same path in one
// update, so these are two writes.
func (r *UserRepo) BumpUnread(ctx context.Context, id string, entry domain.UnreadEntry) error {
	if err := r.ClearUnread(ctx, id, entry.ConversationID); err != nil {
		return err
	}
	return r.update(ctx, id, bson.M{"$push": bson.M{
		"unread_conversations": bson.M{"$each": []domain.UnreadEntry{entry}, "$position": 0},
	}})
}

func (r *UserRepo) ClearUnread(ctx context.Context, id, conversationID string) error {
	return r.update(ctx, id, bson.M{"$pull": bson.M{
		"unread_conversations": bson.M{"conversation_id": conversationID},
	}})
}

func (r *UserRepo) update(ctx context.Context, id string, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

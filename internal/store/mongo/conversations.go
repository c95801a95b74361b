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

type ConversationRepo struct {
	coll   *mongo.Collection
	sealer Sealer
	now    func() time.Time
}

// NewConversationRepo builds the repository. sealer may be nil.
func NewConversationRepo(db *mongo.Database, sealer Sealer) *ConversationRepo {
	return &ConversationRepo{coll: db.Collection(conversationsCollection), sealer: sealer, now: time.Now}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	doc := normalize(c.Clone())
	if r.sealer != nil {
		if err := r.sealer.SealConversation(doc); err != nil {
			return errors.Wrap(err, "seal conversation")
		}
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "insert conversation")
	}
	return nil
}

func (r *ConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find conversation")
	}
	return r.open(&c)
}

func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	filter := bson.M{"participants.user_id": userID, "dissolved": false}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *ConversationRepo) FindPrivate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	filter := bson.M{
		"type":                 domain.ConversationPrivate,
		"participants.user_id": bson.M{"$all": bson.A{userA, userB}},
	}
	list, err := r.find(ctx, filter, options.Find().SetLimit(1))
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (r *ConversationRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Conversation, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find conversations")
	}
	var docs []*domain.Conversation
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode conversations")
	}
	out := make([]*domain.Conversation, 0, len(docs))
	for _, c := range docs {
		opened, err := r.open(c)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, id string, m domain.Message, last domain.LastMessage, keep int) error {
	m = normalizeMessage(m.Clone())
	if r.sealer != nil {
		if err := r.sealer.SealMessage(&m); err != nil {
			return errors.Wrap(err, "seal message")
		}
		enc, err := r.seal(last.Content)
		if err != nil {
			return err
		}
		last.Content = enc
	}
	push := bson.M{"$each": []domain.Message{m}}
	if keep > 0 {
		push["$slice"] = -keep
	}
	return r.update(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"messages": push},
		"$set":  bson.M{"last_message": last, "updated_at": r.now()},
	})
}

// MarkRead pushes a receipt onto every message that was sent by someone
// else and has none for userID yet.
func (r *ConversationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []any{
		bson.M{"m.sender_id": bson.M{"$ne": userID}, "m.read_by.user_id": bson.M{"$ne": userID}},
	}})
	return r.updateWith(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"messages.$[m].read_by": domain.ReadReceipt{UserID: userID, ReadAt: at}},
	}, opts)
}

func (r *ConversationRepo) AddDeletedBy(ctx context.Context, id, messageID, userID string) error {
	return r.updateOnce(ctx, id, messageID,
		bson.M{"deleted_by": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"messages.$.deleted_by": userID}},
		domain.ErrAlreadyDeleted)
}

func (r *ConversationRepo) Revoke(ctx context.Context, id, messageID, placeholder string) error {
	if err := r.updateOnce(ctx, id, messageID,
		bson.M{"is_revoked": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{"messages.$.is_revoked": true}},
		domain.ErrAlreadyRevoked); err != nil {
		return err
	}
	return r.setLastContent(ctx, id, messageID, placeholder)
}

// updateOnce applies update only while cond still holds for the message.
// When nothing matched, a message that exists is reported as done.
func (r *ConversationRepo) updateOnce(ctx context.Context, id, messageID string, cond, update bson.M, done error) error {
	err := r.update(ctx, onceFilter(id, messageID, cond), update)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	n, err := r.coll.CountDocuments(ctx, messageFilter(id, messageID))
	if err != nil {
		return errors.Wrap(err, "count message")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return done
}

func (r *ConversationRepo) EditMessage(ctx context.Context, id, messageID, content string) error {
	stored, err := r.seal(content)
	if err != nil {
		return err
	}
	if err := r.update(ctx, messageFilter(id, messageID), bson.M{
		"$set": bson.M{"messages.$.content": stored, "messages.$.is_edited": true},
	}); err != nil {
		return err
	}
	return r.setLastContent(ctx, id, messageID, content)
}

// setLastContent rewrites the summary only when it still points at messageID.
func (r *ConversationRepo) setLastContent(ctx context.Context, id, messageID, content string) error {
	stored, err := r.seal(content)
	if err != nil {
		return err
	}
	_, err = r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "last_message.message_id": messageID},
		bson.M{"$set": bson.M{"last_message.content": stored}})
	return errors.Wrap(err, "update last message")
}

func (r *ConversationRepo) AddReaction(ctx context.Context, id, messageID string, re domain.Reaction) error {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: []any{
		bson.M{
			"m.id":        messageID,
			"m.reactions": bson.M{"$not": bson.M{"$elemMatch": bson.M{"user_id": re.UserID, "type": re.Type}}},
		},
	}})
	return r.updateWith(ctx, messageFilter(id, messageID), bson.M{
		"$push": bson.M{"messages.$[m].reactions": re},
	}, opts)
}

func (r *ConversationRepo) RemoveReaction(ctx context.Context, id, messageID, userID, reactionType string) error {
	return r.update(ctx, messageFilter(id, messageID), bson.M{
		"$pull": bson.M{"messages.$.reactions": bson.M{"user_id": userID, "type": reactionType}},
	})
}

func (r *ConversationRepo) AddParticipants(ctx context.Context, id string, ps []domain.Participant) error {
	now := r.now()
	for _, p := range ps {
		_, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": id, "participants.user_id": bson.M{"$ne": p.UserID}},
			bson.M{"$push": bson.M{"participants": p}, "$set": bson.M{"updated_at": now}})
		if err != nil {
			return errors.Wrap(err, "add participant")
		}
	}
	return r.exists(ctx, id)
}

func (r *ConversationRepo) RemoveParticipant(ctx context.Context, id, userID string) error {
	return r.update(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"participants": bson.M{"user_id": userID}},
		"$set":  bson.M{"updated_at": r.now()},
	})
}

func (r *ConversationRepo) SetRole(ctx context.Context, id, userID string, role domain.Role) error {
	return r.update(ctx, bson.M{"_id": id, "participants.user_id": userID}, bson.M{
		"$set": bson.M{"participants.$.role": role, "updated_at": r.now()},
	})
}

func (r *ConversationRepo) SetSettings(ctx context.Context, id string, s domain.GroupSettings) error {
	return r.update(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"settings": s, "updated_at": r.now()},
	})
}

func (r *ConversationRepo) UpdateInfo(ctx context.Context, id string, info domain.GroupInfo) error {
	set := bson.M{"updated_at": r.now()}
	if info.Name != nil {
		set["name"] = *info.Name
	}
	if info.Avatar != nil {
		set["avatar"] = *info.Avatar
	}
	if info.Description != nil {
		set["description"] = *info.Description
	}
	return r.update(ctx, bson.M{"_id": id}, bson.M{"$set": set})
}

func (r *ConversationRepo) Dissolve(ctx context.Context, id, actorID string, at time.Time) error {
	return r.update(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"dissolved":    true,
		"dissolved_at": at,
		"dissolved_by": actorID,
		"updated_at":   at,
	}})
}

func (r *ConversationRepo) update(ctx context.Context, filter, update bson.M) error {
	return r.updateWith(ctx, filter, update, nil)
}

func (r *ConversationRepo) updateWith(ctx context.Context, filter, update bson.M, opts *options.UpdateOptions) error {
	var (
		res *mongo.UpdateResult
		err error
	)
	if opts != nil {
		res, err = r.coll.UpdateOne(ctx, filter, update, opts)
	} else {
		res, err = r.coll.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return errors.Wrap(err, "update conversation")
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) exists(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "count conversation")
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) seal(content string) (string, error) {
	if r.sealer == nil || content == "" {
		return content, nil
	}
	enc, err := r.sealer.Encrypt(content)
	return enc, errors.Wrap(err, "seal content")
}

func (r *ConversationRepo) open(c *domain.Conversation) (*domain.Conversation, error) {
	if r.sealer != nil {
		if err := r.sealer.OpenConversation(c); err != nil {
			return nil, errors.Wrap(err, "open conversation")
		}
	}
	return c, nil
}

func messageFilter(id, messageID string) bson.M {
	return bson.M{"_id": id, "messages.id": messageID}
}

func onceFilter(id, messageID string, cond bson.M) bson.M {
	match := bson.M{"id": messageID}
	for k, v := range cond {
		match[k] = v
	}
	return bson.M{"_id": id, "messages": bson.M{"$elemMatch": match}}
}

// normalize replaces nil slices with empty arrays; $push onto a null field
// fails.
func normalize(c *domain.Conversation) *domain.Conversation {
	if c.Participants == nil {
		c.Participants = []domain.Participant{}
	}
	if c.Messages == nil {
		c.Messages = []domain.Message{}
	}
	for i := range c.Messages {
		c.Messages[i] = normalizeMessage(c.Messages[i])
	}
	return c
}

func normalizeMessage(m domain.Message) domain.Message {
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []domain.ReadReceipt{}
	}
	if m.DeletedBy == nil {
		m.DeletedBy = []string{}
	}
	return m
}

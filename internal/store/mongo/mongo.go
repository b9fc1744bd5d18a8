package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/roomchat-server/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type messageDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	RoomID       string             `bson:"roomId"`
	SenderID     string             `bson:"senderId"`
	SenderName   string             `bson:"senderName"`
	SenderAvatar string             `bson:"senderAvatar"`
	Text         string             `bson:"text"`
	Timestamp    string             `bson:"timestamp"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

// MongoStore implements store.Store on top of a MongoDB database.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
}

var _ store.Store = (*MongoStore)(nil)

// New connects to uri and verifies the deployment is reachable.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
	}, nil
}

// EnsureIndexes creates the unique username index and the room history index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ==== UserStore implementation ====

// CreateUser inserts a user document.
func (s *MongoStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return doc.toUser(), nil
}

// GetUserByID retrieves a user by its hex ObjectID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

// GetUserByUsername retrieves a user by username.
func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return doc.toUser(), nil
}

// ==== MessageStore implementation ====

// InsertMessage inserts a message document and returns the stored copy.
func (s *MongoStore) InsertMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	doc := messageDocFrom(msg)
	doc.ID = primitive.NewObjectID()
	// BSON dates carry millisecond precision; truncate so the returned copy matches what is read back.
	doc.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return doc.toMessage(), nil
}

// ListRecentMessages returns the newest limit messages of a room in chronological order.
func (s *MongoStore) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*store.Message, error) {
	if limit <= 0 {
		return []*store.Message{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.messages.Find(ctx, bson.M{"roomId": roomID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cur.Close(ctx)

	messages := make([]*store.Message, 0, limit)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// DeleteRoomMessages removes all messages of a room.
func (s *MongoStore) DeleteRoomMessages(ctx context.Context, roomID string) (int64, error) {
	res, err := s.messages.DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.DeletedCount, nil
}

func (d *userDoc) toUser() *store.User {
	return &store.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

func messageDocFrom(msg *store.Message) messageDoc {
	return messageDoc{
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		SenderAvatar: msg.SenderAvatar,
		Text:         msg.Text,
		Timestamp:    msg.Timestamp,
	}
}

func (d *messageDoc) toMessage() *store.Message {
	return &store.Message{
		ID:           d.ID.Hex(),
		RoomID:       d.RoomID,
		SenderID:     d.SenderID,
		SenderName:   d.SenderName,
		SenderAvatar: d.SenderAvatar,
		Text:         d.Text,
		Timestamp:    d.Timestamp,
		CreatedAt:    d.CreatedAt,
	}
}

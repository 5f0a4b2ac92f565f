package store

import (
	"context"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/module/chat/model"
	"PPAdmin/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBProvider hands out the current database handle; nil when disconnected.
type DBProvider interface {
	TryGetDB() (*mongo.Database, bool)
}

type MongoStore struct {
	db DBProvider
}

func NewMongoStore(db DBProvider) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) coll(t interface{ GetTableName() string }) (*mongo.Collection, error) {
	db, ok := s.db.TryGetDB()
	if !ok {
		return nil, errs.ErrInternalServer.WrapMsg("mongo not ready")
	}
	return db.Collection(t.GetTableName()), nil
}

// EnsureIndexes creates the chat collections' indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	rooms := db.Collection((&model.Room{}).GetTableName())
	if _, err := rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "members", Value: 1}}},
		{Keys: bson.D{{Key: "room_type", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().
				SetName("uniq_direct_pair").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"room_type": model.RoomTypeDirect, "is_deleted": false}),
		},
	}); err != nil {
		return errs.WrapMsg(err, "rooms indexes")
	}

	msgs := db.Collection((&model.Message{}).GetTableName())
	if _, err := msgs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}}},
	}); err != nil {
		return errs.WrapMsg(err, "messages indexes")
	}

	blocks := db.Collection((&model.Block{}).GetTableName())
	if _, err := blocks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return errs.WrapMsg(err, "blocks indexes")
	}
	return nil
}

func (s *MongoStore) FindDirectRoom(ctx context.Context, a, b string) (*model.Room, error) {
	c, err := s.coll(&model.Room{})
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"room_type":  model.RoomTypeDirect,
		"members":    bson.M{"$all": bson.A{a, b}, "$size": 2},
		"is_deleted": false,
	}
	var room model.Room
	if err := c.FindOne(ctx, filter).Decode(&room); err != nil {
		if mongoutil.IsNotFound(err) {
			return nil, errs.ErrRecordNotFound.WrapMsg("direct room", "a", a, "b", b)
		}
		return nil, errs.WrapMsg(err, "find direct room")
	}
	return &room, nil
}

func (s *MongoStore) InsertRoom(ctx context.Context, room *model.Room) error {
	c, err := s.coll(room)
	if err != nil {
		return err
	}
	if _, err := c.InsertOne(ctx, room); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey.WrapMsg("room", "pair_key", room.PairKey)
		}
		return errs.WrapMsg(err, "insert room")
	}
	return nil
}

func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	c, err := s.coll(&model.Room{})
	if err != nil {
		return nil, err
	}
	var room model.Room
	if err := c.FindOne(ctx, bson.M{"_id": roomID, "is_deleted": false}).Decode(&room); err != nil {
		if mongoutil.IsNotFound(err) {
			return nil, errs.ErrRecordNotFound.WrapMsg("room", "room_id", roomID)
		}
		return nil, errs.WrapMsg(err, "get room")
	}
	return &room, nil
}

func (s *MongoStore) SetLastMessage(ctx context.Context, roomID, messageID string, at time.Time) error {
	c, err := s.coll(&model.Room{})
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{
		"$set": bson.M{"last_message_id": messageID, "updated_at": at},
	})
	if err != nil {
		return errs.WrapMsg(err, "set last message")
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("room", "room_id", roomID)
	}
	return nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	c, err := s.coll(msg)
	if err != nil {
		return err
	}
	if _, err := c.InsertOne(ctx, msg); err != nil {
		return errs.WrapMsg(err, "insert message")
	}
	return nil
}

func (s *MongoStore) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	c, err := s.coll(&model.Message{})
	if err != nil {
		return nil, err
	}
	var msg model.Message
	if err := c.FindOne(ctx, bson.M{"_id": messageID, "is_deleted": false}).Decode(&msg); err != nil {
		if mongoutil.IsNotFound(err) {
			return nil, errs.ErrRecordNotFound.WrapMsg("message", "message_id", messageID)
		}
		return nil, errs.WrapMsg(err, "get message")
	}
	return &msg, nil
}

func (s *MongoStore) AddReader(ctx context.Context, messageID, userID string, at time.Time) (*model.Message, error) {
	c, err := s.coll(&model.Message{})
	if err != nil {
		return nil, err
	}
	var msg model.Message
	err = c.FindOneAndUpdate(ctx,
		bson.M{"_id": messageID, "is_deleted": false},
		bson.M{"$addToSet": bson.M{"read_by": userID}, "$set": bson.M{"updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&msg)
	if err != nil {
		if mongoutil.IsNotFound(err) {
			return nil, errs.ErrRecordNotFound.WrapMsg("message", "message_id", messageID)
		}
		return nil, errs.WrapMsg(err, "add reader")
	}
	return &msg, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, roomID, viewer string, page, limit int) ([]*model.Message, mongoutil.Pagination, error) {
	c, err := s.coll(&model.Message{})
	if err != nil {
		return nil, mongoutil.Pagination{}, err
	}
	filter := bson.M{
		"room_id":     roomID,
		"is_deleted":  false,
		"deleted_for": bson.M{"$ne": viewer},
	}
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	return mongoutil.FindPage[*model.Message](ctx, c, filter, sort, page, limit)
}

func (s *MongoStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	c, err := s.coll(&model.Block{})
	if err != nil {
		return false, err
	}
	n, err := c.CountDocuments(ctx, bson.M{
		"blocker_id": blockerID,
		"blocked_id": blockedID,
		"is_active":  true,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "is blocked")
	}
	return n > 0, nil
}

func (s *MongoStore) SetBlock(ctx context.Context, blockerID, blockedID string, active bool, at time.Time) error {
	c, err := s.coll(&model.Block{})
	if err != nil {
		return err
	}
	_, err = c.UpdateOne(ctx,
		bson.M{"blocker_id": blockerID, "blocked_id": blockedID},
		bson.M{
			"$set":         bson.M{"is_active": active, "updated_at": at},
			"$setOnInsert": bson.M{"created_at": at},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errs.WrapMsg(err, "set block")
	}
	return nil
}

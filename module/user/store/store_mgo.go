package store

import (
	"context"
	"time"

	"PPAdmin/data/database/mgo/mongoutil"
	"PPAdmin/module/user/model"
	"PPAdmin/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DBProvider interface {
	TryGetDB() (*mongo.Database, bool)
}

type MongoStore struct {
	db DBProvider
}

func NewMongoStore(db DBProvider) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) coll() (*mongo.Collection, error) {
	db, ok := s.db.TryGetDB()
	if !ok {
		return nil, errs.ErrInternalServer.WrapMsg("mongo not ready")
	}
	return db.Collection((&model.UserDevice{}).GetTableName()), nil
}

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	c := db.Collection((&model.UserDevice{}).GetTableName())
	_, err := c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "access_token", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "expired", Value: 1}, {Key: "is_deleted", Value: 1}}},
	})
	return errs.WrapMsg(err, "user_devices indexes")
}

func (s *MongoStore) InsertDevice(ctx context.Context, d *model.UserDevice) error {
	c, err := s.coll()
	if err != nil {
		return err
	}
	if _, err := c.InsertOne(ctx, d); err != nil {
		if mongoutil.IsDuplicateKey(err) {
			return errs.ErrDuplicateKey.WrapMsg("device", "user_id", d.UserID)
		}
		return errs.WrapMsg(err, "insert device")
	}
	return nil
}

func (s *MongoStore) SetStatus(ctx context.Context, accessToken, status string, lastActive *time.Time, at time.Time) (*model.UserDevice, error) {
	c, err := s.coll()
	if err != nil {
		return nil, err
	}
	var d model.UserDevice
	err = c.FindOneAndUpdate(ctx,
		bson.M{"access_token": accessToken},
		bson.M{"$set": bson.M{
			"current_status": status,
			"last_active":    lastActive,
			"updated_at":     at,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		if mongoutil.IsNotFound(err) {
			return nil, errs.ErrRecordNotFound.WrapMsg("device session")
		}
		return nil, errs.WrapMsg(err, "set device status")
	}
	return &d, nil
}

func (s *MongoStore) ActiveDevices(ctx context.Context, userIDs []string) ([]*model.UserDevice, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	c, err := s.coll()
	if err != nil {
		return nil, err
	}
	cur, err := c.Find(ctx, bson.M{
		"user_id":    bson.M{"$in": userIDs},
		"expired":    false,
		"is_deleted": false,
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "find devices")
	}
	var out []*model.UserDevice
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode devices")
	}
	return out, nil
}

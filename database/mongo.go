package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Connect opens a client and verifies the connection with a ping.
func Connect(uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		log.Println("Mongo Connect error:", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		log.Println("Mongo Ping error:", err)
		return nil, err
	}

	log.Println("MongoDB connected successfully")
	return client, nil
}

// indexModels lists every index the gallery's read paths rely on. Unique
// keys on local_name and source_image_url are what decide the race between
// concurrent account ingestions. The visibility index is partial and keeps
// the tag payload itself out of the keys: indexing the objects array
// directly would make the index multikey, one entry per detected object.
func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_account", Value: 1}}},
		{
			Keys:    bson.D{{Key: "source_image_url", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "local_name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "source_post_id", Value: 1}}},
		{Keys: bson.D{{Key: "phash", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "hidden", Value: 1},
				{Key: "is_duplicate", Value: 1},
				{Key: "post_timestamp", Value: -1},
			},
			Options: options.Index().SetPartialFilterExpression(bson.D{
				{Key: "objects.0", Value: bson.D{{Key: "$exists", Value: true}}},
			}),
		},
		{Keys: bson.D{
			{Key: "tagged_at", Value: -1},
			{Key: "_id", Value: 1},
		}},
	}
}

// EnsureIndexes creates the collection indexes at startup.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	if _, err := coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return err
	}
	log.Println("MongoDB indexes ensured")
	return nil
}

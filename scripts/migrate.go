package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Prepares the MongoDB database the coordination layer writes to:
// collections, unique identifiers, and the lookup indexes behind the
// recovery queries. Safe to run repeatedly.

type collectionSetup struct {
	name    string
	indexes []mongo.IndexModel
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	uri := envOr("MONGODB_URI", "mongodb://localhost:27017")
	dbName := envOr("MONGODB_DATABASE", "shesecure")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf("mongo connect: %v", err)
	}
	defer client.Disconnect(ctx)

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatalf("mongo ping: %v", err)
	}

	db := client.Database(dbName)

	setups := []collectionSetup{
		{
			name: "sos_sessions",
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "session_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "owner_user_id", Value: 1}, {Key: "ended_at", Value: 1}},
				},
			},
		},
		{
			name: "location_shares",
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "share_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "owner_user_id", Value: 1}, {Key: "ended_at", Value: 1}},
				},
			},
		},
		{
			name: "chat_requests",
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "request_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
				},
			},
		},
		{
			name: "chat_rooms",
			indexes: []mongo.IndexModel{
				{
					Keys:    bson.D{{Key: "room_id", Value: 1}},
					Options: options.Index().SetUnique(true),
				},
				{
					Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
				},
				{
					Keys: bson.D{{Key: "counselor_id", Value: 1}, {Key: "status", Value: 1}},
				},
			},
		},
		{
			name: "messages",
			indexes: []mongo.IndexModel{
				{
					Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}},
				},
			},
		},
	}

	for _, setup := range setups {
		collection := db.Collection(setup.name)
		names, err := collection.Indexes().CreateMany(ctx, setup.indexes)
		if err != nil {
			log.Fatalf("indexes for %s: %v", setup.name, err)
		}
		fmt.Printf("%-16s %d indexes (%v)\n", setup.name, len(names), names)
	}

	fmt.Println("migration complete")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

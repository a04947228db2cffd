package config

import (
	"context"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const databaseName = "directory_admin"

type MongoDBConfig struct {
	URI string
}

func NewMongoDBConfig() *MongoDBConfig {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		log.Fatal("DB uri not set")
	}
	return &MongoDBConfig{URI: uri}
}

type MongoDBClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// ConnectMongo dials and pings the cluster. Shared by the fx constructor and
// the serverless entrypoint, which has no lifecycle to hang hooks on.
func ConnectMongo(uri string) (*MongoDBClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB")
	return &MongoDBClient{Client: client, Database: client.Database(databaseName)}, nil
}

func NewMongoDBClient(lc fx.Lifecycle, config *MongoDBConfig) (*MongoDBClient, *mongo.Database, error) {
	c, err := ConnectMongo(config.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			UniquePrincipalEmailIndex(c.Database.Collection("principals"))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			log.Println("Closing MongoDB connection ...")
			return c.Client.Disconnect(stopCtx)
		},
	})
	return c, c.Database, nil
}

// UniquePrincipalEmailIndex guards against two auth principals sharing one
// email address. Directory documents have no such index: the same logical
// user is deliberately stored under several document keys.
func UniquePrincipalEmailIndex(collection *mongo.Collection) {
	indexmodel := mongo.IndexModel{
		Keys:    bson.M{"email": 1},
		Options: options.Index().SetUnique(true),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, err := collection.Indexes().CreateOne(ctx, indexmodel)
	if err != nil {
		log.Fatal("Failed to create unique index on principal email:", err)
	}

	log.Println("Unique index on principal email created successfully")
}

func (c *MongoDBClient) GetCollection(collectionName string) *mongo.Collection {
	return c.Client.Database(databaseName).Collection(collectionName)
}

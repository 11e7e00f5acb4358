package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"imobot/models"
)

const propertiesColl = "properties"

type mongoListing struct {
	ID      string    `bson:"_id"`
	Site    string    `bson:"site"`
	Title   string    `bson:"title"`
	URL     string    `bson:"url"`
	Price   string    `bson:"price"`
	FoundAt time.Time `bson:"found_at"`
}

// MongoStore persists discovered listings to MongoDB, keyed by listing id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects, pings and ensures the found_at index.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo: MONGODB_URI not set")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	coll := client.Database(dbName).Collection(propertiesColl)
	_, err = coll.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "found_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: create index: %w", err)
	}

	return &MongoStore{client: client, coll: coll}, nil
}

func (ms *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := ms.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo: exists %q: %w", id, err)
	}
	return n > 0, nil
}

// Insert stores l. The _id uniqueness turns a second insert into ErrConflict.
func (ms *MongoStore) Insert(ctx context.Context, l *models.Listing) error {
	_, err := ms.coll.InsertOne(ctx, mongoListing{
		ID:      l.ID,
		Site:    l.Site,
		Title:   l.Title,
		URL:     l.URL,
		Price:   l.Price,
		FoundAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("mongo: insert %q: %w", l.ID, err)
	}
	return nil
}

func (ms *MongoStore) Stats(ctx context.Context) (*models.SiteStats, error) {
	cur, err := ms.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$site"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: stats: %w", err)
	}
	defer cur.Close(ctx)

	stats := &models.SiteStats{BySite: make(map[string]int)}
	for cur.Next(ctx) {
		var row struct {
			Site  string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongo: decode stats: %w", err)
		}
		stats.BySite[row.Site] = row.Count
		stats.Total += row.Count
	}
	return stats, cur.Err()
}

func (ms *MongoStore) Recent(ctx context.Context, limit int) ([]*models.Listing, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "found_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := ms.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: recent: %w", err)
	}
	defer cur.Close(ctx)

	var listings []*models.Listing
	for cur.Next(ctx) {
		var doc mongoListing
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode listing: %w", err)
		}
		listings = append(listings, &models.Listing{
			ID: doc.ID, Site: doc.Site, Title: doc.Title,
			URL: doc.URL, Price: doc.Price, FoundAt: doc.FoundAt,
		})
	}
	return listings, cur.Err()
}

func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

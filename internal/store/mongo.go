package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rickgao/barsync/internal/model"
)

// barDoc is the stored document shape.
type barDoc struct {
	Datetime time.Time `bson:"datetime"`
	Open     float64   `bson:"open"`
	High     float64   `bson:"high"`
	Low      float64   `bson:"low"`
	Close    float64   `bson:"close"`
	Volume   float64   `bson:"volume"`
}

// mongoPrecision is the resolution of a BSON datetime.
const mongoPrecision = time.Millisecond

func toDoc(b model.Bar) barDoc {
	return barDoc{
		Datetime: b.Timestamp.Truncate(mongoPrecision),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
	}
}

func (d barDoc) bar() model.Bar {
	return model.Bar{
		Timestamp: d.Datetime.UTC(),
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Close:     d.Close,
		Volume:    d.Volume,
	}
}

// Mongo stores each series in its own collection. BSON datetimes carry
// millisecond precision, so timestamps are truncated on write and on
// DeleteOne; bars less than a millisecond apart collide.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// ConnectMongo dials uri and returns a store over database.
func ConnectMongo(ctx context.Context, uri, database string, timeout time.Duration) (*Mongo, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := NewMongo(client, database)
	m.owned = true
	return m, nil
}

// NewMongo wraps an existing client. Close does not disconnect it.
func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{client: client, db: client.Database(database)}
}

func (m *Mongo) coll(key model.SeriesKey) *mongo.Collection {
	return m.db.Collection(key.String())
}

func (m *Mongo) Find(ctx context.Context, key model.SeriesKey, q Query) (Cursor, error) {
	filter := bson.D{}
	rng := bson.D{}
	if q.Start != nil {
		rng = append(rng, bson.E{Key: "$gte", Value: *q.Start})
	}
	if q.End != nil {
		rng = append(rng, bson.E{Key: "$lte", Value: *q.End})
	}
	if len(rng) > 0 {
		filter = append(filter, bson.E{Key: "datetime", Value: rng})
	}

	dir := 1
	if q.Descending {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "datetime", Value: dir}}).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}

	cur, err := m.coll(key).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", key, err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (m *Mongo) DeleteOne(ctx context.Context, key model.SeriesKey, ts time.Time) (bool, error) {
	res, err := m.coll(key).DeleteOne(ctx, bson.D{{Key: "datetime", Value: ts.Truncate(mongoPrecision)}})
	if err != nil {
		return false, fmt.Errorf("delete %s at %s: %w", key, ts, err)
	}
	return res.DeletedCount > 0, nil
}

// InsertMany writes bars in order. Without the unique index a duplicate is
// not detected; EnsureIndex is called first so it always is.
func (m *Mongo) InsertMany(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if err := m.EnsureIndex(ctx, key); err != nil {
		return err
	}

	docs := make([]any, len(bars))
	for i, b := range bars {
		docs[i] = toDoc(b)
	}

	if _, err := m.coll(key).InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s: %v", model.ErrDuplicate, key, err)
		}
		return fmt.Errorf("insert %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) EnsureIndex(ctx context.Context, key model.SeriesKey) error {
	_, err := m.coll(key).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "datetime", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// Drop removes a series collection. Used by tests.
func (m *Mongo) Drop(ctx context.Context, key model.SeriesKey) error {
	return m.coll(key).Drop(ctx)
}

func (m *Mongo) Close(ctx context.Context) error {
	if !m.owned {
		return nil
	}
	return m.client.Disconnect(ctx)
}

// mongoCursor decodes barDoc documents lazily.
type mongoCursor struct {
	cur *mongo.Cursor
	bar model.Bar
	err error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var doc barDoc
	if err := c.cur.Decode(&doc); err != nil {
		c.err = fmt.Errorf("decode bar: %w", err)
		return false
	}
	c.bar = doc.bar()
	return true
}

func (c *mongoCursor) Bar() model.Bar { return c.bar }

func (c *mongoCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

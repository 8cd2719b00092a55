package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kailas-cloud/crmdex/internal/domain"
)

// changeDocument is the raw change stream event shape.
type changeDocument struct {
	OperationType string         `bson:"operationType"`
	FullDocument  map[string]any `bson:"fullDocument"`
	DocumentKey   struct {
		ID any `bson:"_id"`
	} `bson:"documentKey"`
	NS struct {
		DB   string `bson:"db"`
		Coll string `bson:"coll"`
	} `bson:"ns"`
}

// ChangeFeed is a live subscription to one collection's mutations, delivered
// in commit order.
type ChangeFeed struct {
	stream     *mongo.ChangeStream
	collection string
	decodeErr  error
}

// Watch opens a change feed on a collection with full post-change documents
// attached to update events.
func (s *Store) Watch(ctx context.Context, collection string) (*ChangeFeed, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := s.data.Collection(collection).Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}
	return &ChangeFeed{stream: stream, collection: collection}, nil
}

// Next blocks for the next event. Returns false when the feed is closed or
// fails; Err distinguishes the two.
func (f *ChangeFeed) Next(ctx context.Context) (domain.ChangeEvent, bool) {
	if !f.stream.Next(ctx) {
		return domain.ChangeEvent{}, false
	}

	var raw changeDocument
	if err := f.stream.Decode(&raw); err != nil {
		f.decodeErr = fmt.Errorf("decode change event for %s: %w", f.collection, err)
		return domain.ChangeEvent{}, false
	}

	return domain.ChangeEvent{
		Operation:  domain.ChangeOp(raw.OperationType),
		DocumentID: idString(raw.DocumentKey.ID),
		Document:   raw.FullDocument,
		Collection: f.collection,
	}, true
}

// Err returns the feed's terminal error, if any.
func (f *ChangeFeed) Err() error {
	if f.decodeErr != nil {
		return f.decodeErr
	}
	return f.stream.Err()
}

// Close ends the subscription.
func (f *ChangeFeed) Close(ctx context.Context) error {
	if err := f.stream.Close(ctx); err != nil {
		return fmt.Errorf("close change feed for %s: %w", f.collection, err)
	}
	return nil
}

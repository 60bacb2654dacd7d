// Package mongodb stores each poll as one document with its options embedded.
// Votes are applied with a single FindOneAndUpdate using $inc, so both
// counters change in one document write.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/behzadon/pollvote/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type pollDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Question   string             `bson:"question"`
	Options    []optionDocument   `bson:"options"`
	TotalVotes int64              `bson:"totalVotes"`
	CreatedAt  time.Time          `bson:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt"`
}

type optionDocument struct {
	Text  string `bson:"text"`
	Votes int64  `bson:"votes"`
}

type Store struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

func NewStore(collection *mongo.Collection, logger *zap.Logger) *Store {
	return &Store{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the listing index. Safe to call on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
	}
	if _, err := s.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return &domain.StoreError{Op: "create indexes", Err: err}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, question string, opts []string) (*domain.Poll, error) {
	poll, err := domain.NewPoll(question, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := toDocument(poll)
	doc.ID = primitive.NewObjectID()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, &domain.StoreError{Op: "insert poll", Err: err}
	}

	return doc.toDomain(), nil
}

func (s *Store) FindAll(ctx context.Context) ([]domain.Poll, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, &domain.StoreError{Op: "find polls", Err: err}
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			s.logger.Error("Failed to close cursor", zap.Error(err))
		}
	}()

	var docs []pollDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &domain.StoreError{Op: "decode polls", Err: err}
	}

	polls := make([]domain.Poll, len(docs))
	for i := range docs {
		polls[i] = *docs[i].toDomain()
	}
	return polls, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Poll, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidIdentifier
	}

	var doc pollDocument
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "find poll", Err: err}
	}
	return doc.toDomain(), nil
}

func (s *Store) IncrementOptionVote(ctx context.Context, id string, optionIndex int) (*domain.Poll, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrInvalidIdentifier
	}

	filter, update := incrementVote(oid, optionIndex, time.Now().UTC())
	updateOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc pollDocument
	err = s.collection.FindOneAndUpdate(ctx, filter, update, updateOpts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "increment vote", Err: err}
	}
	return doc.toDomain(), nil
}

// incrementVote builds the filter and update for one vote. The filter also
// requires the indexed option to exist so an out-of-range index can never
// bump totalVotes alone.
func incrementVote(id primitive.ObjectID, optionIndex int, now time.Time) (bson.M, bson.M) {
	optionPath := fmt.Sprintf("options.%d", optionIndex)
	filter := bson.M{
		"_id":      id,
		optionPath: bson.M{"$exists": true},
	}
	update := bson.M{
		"$inc": bson.M{
			optionPath + ".votes": 1,
			"totalVotes":          1,
		},
		"$set": bson.M{"updatedAt": now},
	}
	return filter, update
}

func toDocument(p *domain.Poll) pollDocument {
	doc := pollDocument{
		Question:   p.Question,
		Options:    make([]optionDocument, len(p.Options)),
		TotalVotes: p.TotalVotes,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	for i, o := range p.Options {
		doc.Options[i] = optionDocument{Text: o.Text, Votes: o.Votes}
	}
	return doc
}

func (d *pollDocument) toDomain() *domain.Poll {
	poll := &domain.Poll{
		ID:         d.ID.Hex(),
		Question:   d.Question,
		Options:    make([]domain.Option, len(d.Options)),
		TotalVotes: d.TotalVotes,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
	for i, o := range d.Options {
		poll.Options[i] = domain.Option{Text: o.Text, Votes: o.Votes}
	}
	return poll
}

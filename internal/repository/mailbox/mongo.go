package mailbox

import (
	"context"
	"errors"
	"fmt"

	"zax_relay/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// txAttempts bounds retries when two first appends race to create the same
// mailbox counter.
const txAttempts = 3

type (
	// MongoStore needs a replica set or sharded cluster: appends and deletes
	// update the message and its mailbox counter in one transaction.
	MongoStore struct {
		client   *mongo.Client
		messages *mongo.Collection
		counters *mongo.Collection
	}

	messageDoc struct {
		HPK   []byte `bson:"hpk"`
		Seq   int64  `bson:"seq"`
		From  []byte `bson:"from"`
		Nonce []byte `bson:"nonce"`
		Time  int64  `bson:"time"`
		Data  []byte `bson:"data"`
	}

	// counterDoc holds the last issued seq and the number of live messages.
	counterDoc struct {
		ID    string `bson:"_id"`
		Seq   int64  `bson:"seq"`
		Count int64  `bson:"count"`
	}
)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   db.Client(),
		messages: db.Collection("messages"),
		counters: db.Collection("mailbox_counters"),
	}
}

// EnsureIndexes creates the (hpk, seq) index every query runs on.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "hpk", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// inTransaction runs fn in a fresh session transaction. The driver retries
// transient conflicts; a duplicate key from a racing counter upsert is
// retried here.
func (r *MongoStore) inTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	for attempt := 1; ; attempt++ {
		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, fn(sc)
		})
		if err == nil || !mongo.IsDuplicateKeyError(err) || attempt == txAttempts {
			return err
		}
	}
}

// nextID bumps the counter inside the caller's transaction. The counter
// document stays write-locked until commit, so seqs commit in order.
func (r *MongoStore) nextID(ctx context.Context, hpk model.HPK) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter counterDoc
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": hpk.String()},
		bson.M{"$inc": bson.M{"seq": int64(1), "count": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (r *MongoStore) Append(ctx context.Context, to model.HPK, msg *model.StoredMessage) error {
	var id int64
	err := r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		var err error
		id, err = r.nextID(sc, to)
		if err != nil {
			return fmt.Errorf("allocate message id: %w", err)
		}

		_, err = r.messages.InsertOne(sc, &messageDoc{
			HPK:   to[:],
			Seq:   id,
			From:  msg.From[:],
			Nonce: msg.Nonce[:],
			Time:  msg.Time,
			Data:  msg.Data,
		})
		if err != nil {
			return fmt.Errorf("store message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	msg.ID = id
	return nil
}

// Count reads the running count kept on the mailbox counter.
func (r *MongoStore) Count(ctx context.Context, hpk model.HPK) (int, error) {
	var counter counterDoc
	err := r.counters.FindOne(ctx, bson.M{"_id": hpk.String()}).Decode(&counter)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count mailbox: %w", err)
	}
	return int(counter.Count), nil
}

func (r *MongoStore) ReadRange(ctx context.Context, hpk model.HPK, start, limit int) ([]model.StoredMessage, error) {
	if start < 0 {
		return nil, checkRange(start, 0)
	}

	size, err := r.Count(ctx, hpk)
	if err != nil {
		return nil, err
	}
	if err := checkRange(start, size); err != nil {
		return nil, err
	}
	if limit <= 0 || size == 0 {
		return []model.StoredMessage{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetSkip(int64(start)).
		SetLimit(int64(limit))

	cursor, err := r.messages.Find(ctx, bson.M{"hpk": hpk[:]}, opts)
	if err != nil {
		return nil, fmt.Errorf("read mailbox: %w", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read mailbox: %w", err)
	}

	out := make([]model.StoredMessage, 0, len(docs))
	for _, d := range docs {
		m := model.StoredMessage{
			ID:   d.Seq,
			Time: d.Time,
			Data: d.Data,
		}
		copy(m.From[:], d.From)
		copy(m.Nonce[:], d.Nonce)
		out = append(out, m)
	}
	return out, nil
}

func (r *MongoStore) Delete(ctx context.Context, hpk model.HPK, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.inTransaction(ctx, func(sc mongo.SessionContext) error {
		res, err := r.messages.DeleteMany(sc, bson.M{
			"hpk": hpk[:],
			"seq": bson.M{"$in": ids},
		})
		if err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if res.DeletedCount == 0 {
			return nil
		}

		_, err = r.counters.UpdateOne(sc,
			bson.M{"_id": hpk.String()},
			bson.M{"$inc": bson.M{"count": -res.DeletedCount}},
		)
		if err != nil {
			return fmt.Errorf("update mailbox count: %w", err)
		}
		return nil
	})
}

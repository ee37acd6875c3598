package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/shule/core"
)

// Collections
const (
	Users      = "users"
	Courses    = "courses"
	Activities = "activities"
	Grades     = "grades"
)

// Wrap annotates err with msg. A disconnected client never recovers, so its errors become shutdown errors.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

type DB struct {
	client       *mongo.Client
	db           *mongo.Database
	timeout      time.Duration
	transactions bool
}

var _ core.Transactor = (*DB)(nil) // interface compliance check

// Open connects to the mongo deployment and waits for it to answer.
func Open(conf *core.Config) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(conf.Database.URI).
		SetAppName(conf.AppName).
		SetConnectTimeout(conf.Database.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err = ping(client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return &DB{
		client:       client,
		db:           client.Database(conf.Database.Name),
		timeout:      conf.Database.Timeout,
		transactions: conf.Database.Transactions,
	}, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(client *mongo.Client) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = client.Ping(ctx, readpref.Primary())
		cancel()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

func (db *DB) Collection(name string) *mongo.Collection {
	return db.db.Collection(name)
}

// Drop drops the whole database. Test helper.
func (db *DB) Drop(ctx context.Context) error {
	return db.db.Drop(ctx)
}

// WithTransaction runs fn in a session transaction when transactions are enabled (replica sets only).
// Otherwise fn runs as is and relies on the fixed write order of the caller.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.transactions {
		return fn(ctx)
	}

	sess, err := db.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "starting session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// EnsureIndexes creates the indexes the repositories rely on: unique keys and reference lookups.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(field + "_unique"),
		}
	}
	lookup := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}

	indexes := map[string][]mongo.IndexModel{
		Users: {
			unique("email"),
			unique("username"),
			unique("userId"),
			lookup("role"),
			lookup("status"),
		},
		Courses: {
			unique("courseCode"),
			lookup("teacher"),
			lookup("students"),
		},
		Activities: {lookup("course")},
		Grades: {
			lookup("course"),
			lookup("student"),
		},
	}
	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "creating %s indexes", coll)
		}
	}
	return nil
}

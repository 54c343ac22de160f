// Package mongo implements the coupon and order repositories on MongoDB.
//
// Transactions need a replica set or a sharded cluster. A standalone server
// works for everything except Transactor.InTx.
package mongo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	couponsCollection = "coupons"
	ordersCollection  = "orders"
)

// Store owns the client and the database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and selects database. It does not verify connectivity;
// call Ping for that.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// index on code backs coupon.ErrDuplicateCode.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(couponsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}},
	}); err != nil {
		return errors.Wrap(err, "create coupon indexes")
	}
	if _, err := s.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userIdentity", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return errors.Wrap(err, "create order indexes")
	}
	return nil
}

// Coupons returns the coupon repository.
func (s *Store) Coupons() *CouponRepository {
	return &CouponRepository{coll: s.db.Collection(couponsCollection)}
}

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{coll: s.db.Collection(ordersCollection)}
}

// InTx runs fn inside a multi-document transaction. The session travels in
// the context handed to fn, so repository calls made with it join the
// transaction. Nested calls reuse the outer session.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	return err
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, errors.Wrapf(err, "convert %s to decimal128", d)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "convert decimal128 %s", v)
	}
	return d, nil
}

package mongo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

type couponDoc struct {
	ID            string               `bson:"_id"`
	Code          string               `bson:"code"`
	DiscountType  string               `bson:"discountType"`
	DiscountValue primitive.Decimal128 `bson:"discountValue"`
	ExpiryDate    time.Time            `bson:"expiryDate"`
	Active        bool                 `bson:"active"`
	UsageLimit    *int                 `bson:"usageLimit"`
	UsedCount     int                  `bson:"usedCount"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

func (d couponDoc) toDomain() (coupon.Coupon, error) {
	value, err := fromDecimal128(d.DiscountValue)
	if err != nil {
		return coupon.Coupon{}, err
	}
	return coupon.Coupon{
		ID:            d.ID,
		Code:          d.Code,
		DiscountType:  coupon.DiscountType(d.DiscountType),
		DiscountValue: value,
		ExpiryDate:    d.ExpiryDate.UTC(),
		Active:        d.Active,
		UsageLimit:    d.UsageLimit,
		UsedCount:     d.UsedCount,
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

// CouponRepository implements coupon.Repository on a MongoDB collection.
type CouponRepository struct {
	coll *mongo.Collection
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	value, err := toDecimal128(c.DiscountValue)
	if err != nil {
		return err
	}
	_, err = r.coll.InsertOne(ctx, couponDoc{
		ID:            c.ID,
		Code:          c.Code,
		DiscountType:  string(c.DiscountType),
		DiscountValue: value,
		ExpiryDate:    c.ExpiryDate,
		Active:        c.Active,
		UsageLimit:    c.UsageLimit,
		UsedCount:     c.UsedCount,
		CreatedAt:     c.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return coupon.ErrDuplicateCode
		}
		return errors.Wrapf(err, "insert coupon %q", c.Code)
	}
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var doc couponDoc
	if err := r.coll.FindOne(ctx, bson.M{"code": code}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, coupon.ErrNotFound
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	c, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CouponRepository) List(ctx context.Context, activeOnly bool) ([]coupon.Coupon, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}
	var docs []couponDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode coupons")
	}

	coupons := make([]coupon.Coupon, 0, len(docs))
	for _, d := range docs {
		c, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, nil
}

// IncrementUsage applies $inc only when the document matches the limit
// condition. FindOneAndUpdate is atomic per document.
func (r *CouponRepository) IncrementUsage(ctx context.Context, id string) (int, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"usageLimit": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usedCount", "$usageLimit"}}},
		},
	}
	update := bson.M{"$inc": bson.M{"usedCount": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc couponDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.UsedCount, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, errors.Wrapf(err, "increment coupon %q", id)
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, errors.Wrapf(err, "check coupon %q", id)
	}
	if n == 0 {
		return 0, coupon.ErrNotFound
	}
	return 0, coupon.ErrUsageLimitReached
}

package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

type appliedCouponDoc struct {
	Code           string               `bson:"code"`
	DiscountType   string               `bson:"discountType"`
	DiscountValue  primitive.Decimal128 `bson:"discountValue"`
	DiscountAmount primitive.Decimal128 `bson:"discountAmount"`
}

type orderDoc struct {
	ID            string               `bson:"_id"`
	UserIdentity  string               `bson:"userIdentity"`
	Items         []string             `bson:"items"`
	TotalAmount   primitive.Decimal128 `bson:"totalAmount"`
	FinalTotal    primitive.Decimal128 `bson:"finalTotal"`
	AppliedCoupon *appliedCouponDoc    `bson:"appliedCoupon"`
	Status        string               `bson:"status"`
	CreatedAt     time.Time            `bson:"createdAt"`
}

// OrderRepository implements order.Repository on a MongoDB collection.
type OrderRepository struct {
	coll *mongo.Collection
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := newOrderDoc(o)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, order.ErrOrderNotFound
		}
		return nil, errors.Wrapf(err, "find order %q", id)
	}
	o, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, user string) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"userIdentity": user}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}

	orders := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to)}},
	)
	if err != nil {
		return errors.Wrapf(err, "update order %q", id)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if n == 0 {
		return order.ErrOrderNotFound
	}
	return order.ErrStatusConflict
}

func (r *OrderRepository) SalesReport(ctx context.Context) (*order.SalesReport, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "year", Value: bson.D{{Key: "$year", Value: "$createdAt"}}},
				{Key: "month", Value: bson.D{{Key: "$month", Value: "$createdAt"}}},
			}},
			{Key: "totalRevenue", Value: bson.D{{Key: "$sum", Value: "$finalTotal"}}},
			{Key: "totalOrders", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.year", Value: 1}, {Key: "_id.month", Value: 1}}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate sales")
	}
	var rows []struct {
		ID struct {
			Year  int `bson:"year"`
			Month int `bson:"month"`
		} `bson:"_id"`
		TotalRevenue primitive.Decimal128 `bson:"totalRevenue"`
		TotalOrders  int                  `bson:"totalOrders"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "decode sales")
	}

	report := &order.SalesReport{TotalRevenue: decimal.Zero}
	for _, row := range rows {
		revenue, err := fromDecimal128(row.TotalRevenue)
		if err != nil {
			return nil, err
		}
		report.Monthly = append(report.Monthly, order.MonthlySales{
			Year:         row.ID.Year,
			Month:        time.Month(row.ID.Month),
			TotalRevenue: revenue,
			TotalOrders:  row.TotalOrders,
		})
		report.TotalRevenue = report.TotalRevenue.Add(revenue)
		report.TotalOrders += row.TotalOrders
	}
	return report, nil
}

func newOrderDoc(o *order.Order) (*orderDoc, error) {
	items, err := itemsToBSON(o.Items)
	if err != nil {
		return nil, err
	}
	total, err := toDecimal128(o.TotalAmount)
	if err != nil {
		return nil, err
	}
	final, err := toDecimal128(o.FinalTotal)
	if err != nil {
		return nil, err
	}

	doc := &orderDoc{
		ID:           o.ID,
		UserIdentity: o.UserIdentity,
		Items:        items,
		TotalAmount:  total,
		FinalTotal:   final,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt,
	}
	if ac := o.AppliedCoupon; ac != nil {
		value, err := toDecimal128(ac.DiscountValue)
		if err != nil {
			return nil, err
		}
		amount, err := toDecimal128(ac.DiscountAmount)
		if err != nil {
			return nil, err
		}
		doc.AppliedCoupon = &appliedCouponDoc{
			Code:           ac.Code,
			DiscountType:   string(ac.DiscountType),
			DiscountValue:  value,
			DiscountAmount: amount,
		}
	}
	return doc, nil
}

func (d orderDoc) toDomain() (order.Order, error) {
	items, err := itemsFromBSON(d.Items)
	if err != nil {
		return order.Order{}, err
	}
	total, err := fromDecimal128(d.TotalAmount)
	if err != nil {
		return order.Order{}, err
	}
	final, err := fromDecimal128(d.FinalTotal)
	if err != nil {
		return order.Order{}, err
	}

	o := order.Order{
		ID:           d.ID,
		UserIdentity: d.UserIdentity,
		Items:        items,
		TotalAmount:  total,
		FinalTotal:   final,
		Status:       order.Status(d.Status),
		CreatedAt:    d.CreatedAt.UTC(),
	}
	if ac := d.AppliedCoupon; ac != nil {
		value, err := fromDecimal128(ac.DiscountValue)
		if err != nil {
			return order.Order{}, err
		}
		amount, err := fromDecimal128(ac.DiscountAmount)
		if err != nil {
			return order.Order{}, err
		}
		o.AppliedCoupon = &order.AppliedCoupon{
			Code:           ac.Code,
			DiscountType:   coupon.DiscountType(ac.DiscountType),
			DiscountValue:  value,
			DiscountAmount: amount,
		}
	}
	return o, nil
}

// itemsToBSON keeps each item as its submitted JSON text. Items are opaque,
// and decoding them into BSON would reinterpret extended-JSON keys such as
// "$oid" or "$numberLong".
func itemsToBSON(items []json.RawMessage) ([]string, error) {
	out := make([]string, len(items))
	for i, item := range items {
		if !json.Valid(item) {
			return nil, errors.Errorf("item %d is not valid JSON", i)
		}
		out[i] = string(item)
	}
	return out, nil
}

func itemsFromBSON(items []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		if !json.Valid([]byte(item)) {
			return nil, errors.Errorf("stored item %d is not valid JSON", i)
		}
		out[i] = json.RawMessage(item)
	}
	return out, nil
}

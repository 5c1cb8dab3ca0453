package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// BookingRepository は予約リポジトリの MongoDB 実装
type BookingRepository struct{ coll *mongo.Collection }

func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	m, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	doc, err := newBookingDoc(b)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(m.with(ctx), doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("予約IDが重複しています: %s", b.ID)
		}
		return fmt.Errorf("予約作成に失敗: %w", translate(err))
	}
	return nil
}

// Lock は lock_version を加算して予約ドキュメントに書き込みロックをかける
func (r *BookingRepository) Lock(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	m, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	var doc bookingDoc
	err = r.coll.FindOneAndUpdate(m.with(ctx), bson.M{"_id": id}, bson.M{"$inc": bson.M{"lock_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, translate(err)
	}
	return doc.toEntity()
}

func (r *BookingRepository) Update(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	m, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	doc, err := newBookingDoc(b)
	if err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(m.with(ctx), bson.M{"_id": b.ID}, bson.M{"$set": bson.M{
		"status":       doc.Status,
		"total_price":  doc.TotalPrice,
		"discount":     doc.Discount,
		"final_price":  doc.FinalPrice,
		"expires_at":   doc.ExpiresAt,
		"confirmed_at": doc.ConfirmedAt,
		"canceled_at":  doc.CanceledAt,
	}})
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", translate(err))
	}
	if res.MatchedCount == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var doc bookingDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return doc.toEntity()
}

func (r *BookingRepository) CountConfirmedByUser(ctx context.Context, userID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID, "status": string(booking.StatusConfirmed)})
	if err != nil {
		return 0, fmt.Errorf("確定済み予約数の取得に失敗: %w", err)
	}
	return int(n), nil
}

func (r *BookingRepository) ListByStatus(ctx context.Context, status booking.Status) ([]*booking.Booking, error) {
	return r.list(ctx, bson.M{"status": string(status)})
}

func (r *BookingRepository) ListExpiredHolds(ctx context.Context, now time.Time) ([]*booking.Booking, error) {
	return r.list(ctx, bson.M{
		"status":     string(booking.StatusInProgress),
		"expires_at": bson.M{"$ne": nil, "$lt": now},
	})
}

func (r *BookingRepository) list(ctx context.Context, filter bson.M) ([]*booking.Booking, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "booked_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	var docs []bookingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	out := make([]*booking.Booking, len(docs))
	for i := range docs {
		b, err := docs[i].toEntity()
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

var _ booking.Repository = (*BookingRepository)(nil)

package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

type UserRepository struct{ coll *mongo.Collection }

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return doc.toEntity(), nil
}

type CategoryRepository struct{ coll *mongo.Collection }

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	var doc categoryDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, category.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("カテゴリ取得に失敗: %w", err)
	}
	return doc.toEntity()
}

func (r *CategoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*category.Category, error) {
	cur, err := r.coll.Find(ctx, bson.M{"event_id": eventID}, options.Find().SetSort(bson.D{{Key: "area", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧取得に失敗: %w", err)
	}
	var docs []categoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧取得に失敗: %w", err)
	}
	out := make([]*category.Category, len(docs))
	for i := range docs {
		c, err := docs[i].toEntity()
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

var (
	_ user.Repository     = (*UserRepository)(nil)
	_ category.Repository = (*CategoryRepository)(nil)
)

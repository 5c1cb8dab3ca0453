// Package mongo は MongoDB のマルチドキュメントトランザクションによるストア実装。
// レプリカセット（またはシャードクラスタ）が必要。
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// NewClient は MongoDB へ接続し、プライマリへの疎通を確認する
func NewClient(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("MongoDB接続に失敗しました: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("MongoDB接続確認に失敗しました: %w", err)
	}
	return client, nil
}

// Store は MongoDB 上のストア
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	tickets    *TicketRepository
	bookings   *BookingRepository
	users      *UserRepository
	categories *CategoryRepository
}

func NewStore(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:     client,
		db:         db,
		tickets:    &TicketRepository{coll: db.Collection("tickets"), now: func() time.Time { return time.Now().UTC() }},
		bookings:   &BookingRepository{coll: db.Collection("bookings")},
		users:      &UserRepository{coll: db.Collection("users")},
		categories: &CategoryRepository{coll: db.Collection("categories")},
	}
}

func (s *Store) Tickets() ticket.Repository { return s.tickets }

func (s *Store) Bookings() booking.Repository { return s.bookings }

func (s *Store) Users() user.Repository { return s.users }

func (s *Store) Categories() category.Repository { return s.categories }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

// EnsureIndexes はシリアル番号・座席・ユーザーの一意インデックスと検索用インデックスを作成する
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		"tickets": {
			{Keys: bson.D{{Key: "serial_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				// 販売済みかつ座席ありのチケットだけが seat_key を持つ
				Keys: bson.D{{Key: "seat_key", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"seat_key": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "booking_id", Value: 1}}},
		},
		"bookings": {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
		"users": {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		"categories": {
			{Keys: bson.D{{Key: "event_id", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s のインデックス作成に失敗: %w", coll, err)
		}
	}
	return nil
}

// Seed はカタログをまとめて登録する
func (s *Store) Seed(ctx context.Context, c store.Catalog) error {
	users := make([]any, 0, len(c.Users))
	for _, u := range c.Users {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		users = append(users, &userDoc{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	categories := make([]any, 0, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.Validate(); err != nil {
			return err
		}
		if cat.ID == "" {
			cat.ID = uuid.New().String()
		}
		doc, err := newCategoryDoc(cat)
		if err != nil {
			return err
		}
		categories = append(categories, doc)
	}
	tickets := make([]any, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		doc, err := newTicketDoc(t)
		if err != nil {
			return err
		}
		tickets = append(tickets, doc)
	}

	for coll, docs := range map[string][]any{"users": users, "categories": categories, "tickets": tickets} {
		if len(docs) == 0 {
			continue
		}
		if _, err := s.db.Collection(coll).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("%s の一括作成に失敗: %w", coll, translateSeat(err))
		}
	}
	return nil
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Seeder = (*Store)(nil)
)

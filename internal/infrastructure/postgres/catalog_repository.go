package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

type UserRepository struct{ db *sqlx.DB }

func NewUserRepository(db *sqlx.DB) *UserRepository { return &UserRepository{db: db} }

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var u user.User
	query := `SELECT id, username, email FROM users WHERE id = ?`
	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query), id).Scan(&u.ID, &u.Username, &u.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return &u, nil
}

var _ user.Repository = (*UserRepository)(nil)

const categoryColumns = `id, event_id, description, price, area, start_at, end_at`

type categoryRow struct {
	ID          string          `db:"id"`
	EventID     string          `db:"event_id"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Area        string          `db:"area"`
	StartAt     time.Time       `db:"start_at"`
	EndAt       *time.Time      `db:"end_at"`
}

func (r *categoryRow) toEntity() *category.Category {
	return &category.Category{
		ID: r.ID, EventID: r.EventID, Description: r.Description,
		Price: r.Price, Area: r.Area, StartAt: r.StartAt, EndAt: r.EndAt,
	}
}

type CategoryRepository struct{ db *sqlx.DB }

func NewCategoryRepository(db *sqlx.DB) *CategoryRepository { return &CategoryRepository{db: db} }

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*category.Category, error) {
	var row categoryRow
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, category.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("カテゴリ取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *CategoryRepository) ListByEvent(ctx context.Context, eventID string) ([]*category.Category, error) {
	var rows []categoryRow
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE event_id = ? ORDER BY area`
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), eventID); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧取得に失敗: %w", err)
	}
	out := make([]*category.Category, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

var _ category.Repository = (*CategoryRepository)(nil)

package category

import "context"

// Repository はカテゴリリポジトリのインターフェース
type Repository interface {
	GetByID(ctx context.Context, id string) (*Category, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Category, error)
}

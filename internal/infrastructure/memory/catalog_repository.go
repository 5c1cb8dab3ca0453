package memory

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// UserRepository はユーザーリポジトリのメモリ実装
type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(_ context.Context, id string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// CategoryRepository はカテゴリリポジトリのメモリ実装
type CategoryRepository struct{ s *Store }

func (r *CategoryRepository) GetByID(_ context.Context, id string) (*category.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok {
		return nil, category.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CategoryRepository) ListByEvent(_ context.Context, eventID string) ([]*category.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*category.Category, 0)
	for _, c := range r.s.categories {
		if c.EventID == eventID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

var (
	_ user.Repository     = (*UserRepository)(nil)
	_ category.Repository = (*CategoryRepository)(nil)
)

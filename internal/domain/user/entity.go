package user

import (
	"context"
	"errors"
)

var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// User は予約者を表す。予約からは ID で参照されるだけで所有はされない
type User struct {
	ID       string
	Username string
	Email    string
}

// Repository はユーザーリポジトリのインターフェース
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

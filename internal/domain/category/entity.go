package category

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category はチケットカテゴリ（価格・エリア・販売期間）を表す
type Category struct {
	ID          string
	EventID     string
	Description string
	Price       decimal.Decimal
	Area        string
	StartAt     time.Time
	EndAt       *time.Time // nil の場合は終了日なし
}

// IsActive は指定時刻が販売期間内かを返す
func (c *Category) IsActive(now time.Time) bool {
	if now.Before(c.StartAt) {
		return false
	}
	return c.EndAt == nil || !now.After(*c.EndAt)
}

// MatchesArea はエリアがカテゴリの設定と一致するかを返す（大文字小文字は区別しない）
func (c *Category) MatchesArea(area string) bool {
	return strings.EqualFold(c.Area, area)
}

// CheckSeatRequest は座席割り当て要求がカテゴリの条件を満たすか検証する
func (c *Category) CheckSeatRequest(area string, now time.Time) error {
	if !c.IsActive(now) {
		return ErrCategoryInactive
	}
	if !c.MatchesArea(area) {
		return ErrAreaMismatch
	}
	return nil
}

// Validate はカテゴリの検証を行う
func (c *Category) Validate() error {
	if c.Area == "" {
		return ErrAreaRequired
	}
	if c.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if c.EndAt != nil && c.EndAt.Before(c.StartAt) {
		return ErrInvalidPeriod
	}
	return nil
}

package harness

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/category"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/store"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// FixtureConfig はシミュレーション用カタログの規模
type FixtureConfig struct {
	EventID string
	Tickets int
	Users   int
	StartAt time.Time
	// Prefix はシリアル番号・ユーザー名・メールアドレスの先頭に付ける。同じストアで複数回生成する場合に使う
	Prefix string
}

var fixtureAreas = []struct {
	area  string
	price string
}{
	{"A", "50.00"},
	{"B", "75.00"},
	{"C", "100.00"},
}

// GenerateCatalog はエリア A/B/C のカテゴリと、各エリアへ順に割り振ったチケット・ユーザーを生成する
func GenerateCatalog(cfg FixtureConfig) store.Catalog {
	if cfg.StartAt.IsZero() {
		cfg.StartAt = time.Now().Add(-time.Hour)
	}

	var c store.Catalog
	for _, a := range fixtureAreas {
		c.Categories = append(c.Categories, &category.Category{
			ID:          uuid.New().String(),
			EventID:     cfg.EventID,
			Description: fmt.Sprintf("エリア%s", a.area),
			Price:       decimal.RequireFromString(a.price),
			Area:        a.area,
			StartAt:     cfg.StartAt,
		})
	}
	for i := 0; i < cfg.Tickets; i++ {
		cat := c.Categories[i%len(c.Categories)]
		t := ticket.NewTicket(cfg.EventID, cat.ID, fmt.Sprintf("%sSN-%05d", cfg.Prefix, i+1), cat.Area, cat.Price)
		t.ID = uuid.New().String()
		c.Tickets = append(c.Tickets, t)
	}
	for i := 0; i < cfg.Users; i++ {
		name := fmt.Sprintf("%ssim-user-%04d", cfg.Prefix, i+1)
		c.Users = append(c.Users, &user.User{
			ID:       uuid.New().String(),
			Username: name,
			Email:    name + "@example.com",
		})
	}
	return c
}

// UserIDs はカタログのユーザーID一覧を返す
func UserIDs(c store.Catalog) []string {
	ids := make([]string, 0, len(c.Users))
	for _, u := range c.Users {
		ids = append(ids, u.ID)
	}
	return ids
}

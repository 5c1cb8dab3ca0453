package booking

import "github.com/shopspring/decimal"

// DiscountPolicy は合計金額と過去の確定予約数から割引額を決める
type DiscountPolicy interface {
	Discount(total decimal.Decimal, priorConfirmed int) decimal.Decimal
}

// LoyaltyDiscount は確定予約数が閾値を超えたユーザーに一定率の割引を適用する
type LoyaltyDiscount struct {
	Threshold int
	Rate      decimal.Decimal
}

// DefaultLoyaltyDiscount は閾値5件・割引率5%のポリシーを返す
func DefaultLoyaltyDiscount() LoyaltyDiscount {
	return LoyaltyDiscount{Threshold: 5, Rate: decimal.NewFromFloat(0.05)}
}

func (p LoyaltyDiscount) Discount(total decimal.Decimal, priorConfirmed int) decimal.Decimal {
	if priorConfirmed <= p.Threshold {
		return decimal.Zero
	}
	return total.Mul(p.Rate).Round(2)
}

// NoDiscount は常に割引なし
type NoDiscount struct{}

func (NoDiscount) Discount(decimal.Decimal, int) decimal.Decimal { return decimal.Zero }

// Package amqp は予約確定通知を RabbitMQ へ送信する
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
)

const DefaultQueue = "booking.confirmed"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher はデフォルトエクスチェンジ経由でキューへメッセージを送る
type Publisher struct {
	mu    sync.Mutex
	conn  *amqp091.Connection
	ch    channel
	queue string
	now   func() time.Time
}

// NewPublisher は接続を確立し、永続キューを宣言する
func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ接続に失敗しました: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("チャネルのオープンに失敗しました: %w", err)
	}
	// 冪等な宣言。ブローカー再起動後もメッセージが残るよう durable にする
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("キューの宣言に失敗しました: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, now: time.Now}, nil
}

// PublishBookingConfirmed は確定した予約を通知する
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, b *booking.Booking) error {
	body, err := json.Marshal(NewBookingConfirmedEvent(b))
	if err != nil {
		return fmt.Errorf("メッセージの変換に失敗しました: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    b.ID,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("メッセージの送信に失敗しました: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

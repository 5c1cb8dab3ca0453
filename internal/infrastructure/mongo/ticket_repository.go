package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/ticket"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// TicketRepository はチケットリポジトリの MongoDB 実装
// 他トランザクションが書き込み中のドキュメントへの更新は即座に書き込み競合となるため、
// ロックは常に条件付き更新（即時失敗）として振る舞う
type TicketRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// Lock は status = AVAILABLE を条件に findAndModify で予約状態にする
func (r *TicketRepository) Lock(ctx context.Context, tx transaction.Tx, serial string) (*ticket.Ticket, error) {
	m, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	sc := m.with(ctx)

	now := r.now()
	var doc ticketDoc
	err = r.coll.FindOneAndUpdate(sc,
		bson.M{"serial_number": serial, "status": string(ticket.StatusAvailable)},
		bson.M{
			"$set": bson.M{"status": string(ticket.StatusReserved), "reserved_at": now},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		m.lock(doc.ID)
		return doc.toEntity()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, translate(err)
	}

	// 条件に一致しない場合は存在するかどうかで結果を分ける
	var cur ticketDoc
	if err := r.coll.FindOne(sc, bson.M{"serial_number": serial}).Decode(&cur); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, translate(err)
	}
	if m.holds(cur.ID) {
		return cur.toEntity()
	}
	return nil, ticket.ErrNotAvailable
}

// LockByBooking は予約に紐付くチケットをシリアル番号順に書き込みロックする
func (r *TicketRepository) LockByBooking(ctx context.Context, tx transaction.Tx, bookingID string) ([]*ticket.Ticket, error) {
	m, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	sc := m.with(ctx)

	docs, err := r.find(sc, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, err
	}
	out := make([]*ticket.Ticket, 0, len(docs))
	for _, d := range docs {
		t, err := r.touch(sc, m, bson.M{"_id": d.ID, "booking_id": bookingID})
		if errors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// touch は version を加算してドキュメントに書き込みロックをかける
func (r *TicketRepository) touch(sc context.Context, m *Tx, filter bson.M) (*ticket.Ticket, error) {
	var doc ticketDoc
	err := r.coll.FindOneAndUpdate(sc, filter, bson.M{"$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetSort(bson.D{{Key: "serial_number", Value: 1}}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, translate(err)
	}
	m.lock(doc.ID)
	return doc.toEntity()
}

// Update はロック済みのチケットを置き換える。座席の一意インデックス違反は ticket.ErrSeatTaken になる
func (r *TicketRepository) Update(ctx context.Context, tx transaction.Tx, t *ticket.Ticket) error {
	m, err := unwrapTx(tx)
	if err != nil {
		return err
	}
	if !m.holds(t.ID) {
		return ticket.ErrTicketNotLocked
	}
	doc, err := newTicketDoc(t)
	if err != nil {
		return err
	}
	doc.Version++
	if _, err := r.coll.ReplaceOne(m.with(ctx), bson.M{"_id": t.ID}, doc); err != nil {
		return translateSeat(err)
	}
	return nil
}

func (r *TicketRepository) FindSoldBySeat(ctx context.Context, tx transaction.Tx, area, row, seat string) ([]*ticket.Ticket, error) {
	m, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	docs, err := r.find(m.with(ctx), bson.M{
		"seat_key": ticket.SeatKey(area, row, seat),
		"status":   string(ticket.StatusSold),
	})
	if err != nil {
		return nil, err
	}
	return toTickets(docs)
}

func (r *TicketRepository) FindUnseated(ctx context.Context, tx transaction.Tx, bookingID, categoryID string) (*ticket.Ticket, error) {
	m, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	t, err := r.touch(m.with(ctx), m, bson.M{
		"booking_id":  bookingID,
		"category_id": categoryID,
		"status":      string(ticket.StatusSold),
		"row":         nil,
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ticket.ErrTicketNotFound
	}
	return t, err
}

func (r *TicketRepository) GetBySerial(ctx context.Context, serial string) (*ticket.Ticket, error) {
	var doc ticketDoc
	if err := r.coll.FindOne(ctx, bson.M{"serial_number": serial}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ticket.ErrTicketNotFound
		}
		return nil, fmt.Errorf("チケット取得に失敗: %w", err)
	}
	return doc.toEntity()
}

func (r *TicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*ticket.Ticket, error) {
	docs, err := r.find(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return nil, err
	}
	return toTickets(docs)
}

func (r *TicketRepository) ListAvailableSerials(ctx context.Context, eventID string) ([]string, error) {
	docs, err := r.find(ctx, bson.M{"event_id": eventID, "status": string(ticket.StatusAvailable)})
	if err != nil {
		return nil, err
	}
	serials := make([]string, len(docs))
	for i, d := range docs {
		serials[i] = d.SerialNumber
	}
	return serials, nil
}

func (r *TicketRepository) CountByStatus(ctx context.Context, eventID string, status ticket.Status) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"event_id": eventID, "status": string(status)})
	if err != nil {
		return 0, fmt.Errorf("チケット数の取得に失敗: %w", err)
	}
	return int(n), nil
}

// find はシリアル番号順にドキュメントを取得する
func (r *TicketRepository) find(ctx context.Context, filter bson.M) ([]ticketDoc, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "serial_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("チケット検索に失敗: %w", translate(err))
	}
	var docs []ticketDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("チケット検索に失敗: %w", translate(err))
	}
	return docs, nil
}

func toTickets(docs []ticketDoc) ([]*ticket.Ticket, error) {
	out := make([]*ticket.Ticket, len(docs))
	for i := range docs {
		t, err := docs[i].toEntity()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

var _ ticket.Repository = (*TicketRepository)(nil)

package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dgreene/pulse/pkg/observability"
)

const (
	upsertUserSQL = `
		INSERT INTO users (id, email, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO NOTHING`

	insertEventSQL = `
		INSERT INTO events (user_id, session_id, event_type, page_path, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at`

	insertOrderSQL = `
		INSERT INTO orders (user_id, order_number, status, amount, currency, items_count, metadata, created_at)
		VALUES ($1, $2, 'completed', $3, $4, $5, $6, NOW())
		RETURNING id, created_at`
)

// Event is a single user interaction to be recorded.
type Event struct {
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	SessionID uuid.UUID              `json:"session_id"`
	EventType string                 `json:"event_type"`
	PagePath  string                 `json:"page_path,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the event's required fields.
func (e Event) Validate() error {
	if e.SessionID == uuid.Nil {
		return fmt.Errorf("session_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	return nil
}

// Order is a completed purchase to be recorded.
type Order struct {
	UserID      *uuid.UUID             `json:"user_id,omitempty"`
	OrderNumber string                 `json:"order_number"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency,omitempty"`
	ItemsCount  int                    `json:"items_count,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the order's required fields.
func (o Order) Validate() error {
	if o.OrderNumber == "" {
		return fmt.Errorf("order_number is required")
	}
	if !o.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// Receipt acknowledges a recorded event or order.
type Receipt struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store writes events and orders. Writes land in the base tables only;
// they become visible in analytical reads after the next materialized
// view refresh, or within the realtime counters maintained elsewhere.
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewStore creates an ingestion store over the given database.
func NewStore(db *sql.DB, logger *observability.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// RecordEvent persists one event. When a user ID is supplied, an
// unknown user is created on the fly so event ingestion never fails on
// foreign keys.
func (s *Store) RecordEvent(ctx context.Context, e Event) (*Receipt, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	if e.UserID != nil {
		email := fmt.Sprintf("user_%s@example.com", e.UserID)
		if _, err := s.db.ExecContext(ctx, upsertUserSQL, *e.UserID, email); err != nil {
			return nil, fmt.Errorf("upsert user: %w", err)
		}
	}

	var r Receipt
	err = s.db.QueryRowContext(ctx, insertEventSQL,
		uuidOrNil(e.UserID), e.SessionID, e.EventType, nullableString(e.PagePath), meta,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"event_id":   r.ID.String(),
		"event_type": e.EventType,
	}).Debug("recorded event")
	return &r, nil
}

// RecordOrder persists one completed order.
func (s *Store) RecordOrder(ctx context.Context, o Order) (*Receipt, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	meta, err := marshalMetadata(o.Metadata)
	if err != nil {
		return nil, err
	}

	currency := o.Currency
	if currency == "" {
		currency = "USD"
	}

	var r Receipt
	err = s.db.QueryRowContext(ctx, insertOrderSQL,
		uuidOrNil(o.UserID), o.OrderNumber, o.Amount.String(), currency, o.ItemsCount, meta,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"order_id":     r.ID.String(),
		"order_number": o.OrderNumber,
	}).Debug("recorded order")
	return &r, nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serialize metadata: %w", err)
	}
	return payload, nil
}

func uuidOrNil(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

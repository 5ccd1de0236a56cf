package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqlConn interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
}

// SQL stores cart slots as rows of the cart_slots table.
type SQL struct {
	conn sqlConn
	now  func() time.Time
}

func NewSQL(conn sqlConn) (*SQL, error) {
	if conn == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &SQL{conn: conn, now: time.Now}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var slot models.CartSlot
	err := s.conn.DB().WithContext(ctx).Where("slot_key = ?", key).Take(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select cart slot: %w", err)
	}
	return slot.Payload, true, nil
}

// Set upserts the slot row so every write replaces the previous payload.
func (s *SQL) Set(ctx context.Context, key, value string) error {
	slot := models.CartSlot{Key: key, Payload: value, UpdatedAt: s.now().UTC()}
	err := s.conn.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("upsert cart slot: %w", err)
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

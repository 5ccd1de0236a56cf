package models

import "time"

// CartSlot is one durable key-value slot holding a serialized cart line list.
type CartSlot struct {
	Key       string    `gorm:"column:slot_key;primaryKey"`
	Payload   string    `gorm:"column:payload;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (CartSlot) TableName() string {
	return "cart_slots"
}

package model

import "time"

// OutboxEvent is written in the same transaction as the domain mutation it
// describes. PublishedAt stays NULL until the relay has handed the row to the
// broker; it is set exactly once.
type OutboxEvent struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	Topic       string    `gorm:"size:255;not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	PublishedAt *time.Time
}

func (OutboxEvent) TableName() string { return "outbox" }

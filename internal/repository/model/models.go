package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"size:255;not null"`
	Username     string    `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

type Meeting struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"size:255;index;not null;uniqueIndex:idx_meetings_user_code"`
	MeetingCode string    `gorm:"size:255;not null;uniqueIndex:idx_meetings_user_code"`
	JoinedAt    time.Time `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

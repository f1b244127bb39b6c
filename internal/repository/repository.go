package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUsernameExists   = errors.New("username already taken")
	ErrMeetingDuplicate = errors.New("meeting already recorded")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	ListByUsername(ctx context.Context, username string) ([]*domain.Meeting, error)
}

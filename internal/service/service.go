package service

import (
	"context"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

type UserInteractor interface {
	Register(ctx context.Context, name, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	Authenticate(token string) (*Claims, error)
}

type MeetingInteractor interface {
	AddToHistory(ctx context.Context, username, meetingCode string) (*domain.Meeting, bool, error)
	History(ctx context.Context, username string) ([]*domain.Meeting, error)
}

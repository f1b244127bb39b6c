package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meshtalk/internal/domain"
)

// In-memory repositories back dsn-less local runs and tests.

type InMemoryUserRepository struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]*domain.User
	usernames map[string]uuid.UUID
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:     make(map[uuid.UUID]*domain.User),
		usernames: make(map[string]uuid.UUID),
	}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usernames[user.Username]; ok {
		return ErrUsernameExists
	}
	r.users[user.ID] = user
	r.usernames[user.Username] = user.ID
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *InMemoryUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usernames[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.users[id], nil
}

type InMemoryMeetingRepository struct {
	mu       sync.RWMutex
	meetings []*domain.Meeting
	seen     map[string]struct{} // username + "\x00" + code
}

func NewInMemoryMeetingRepository() *InMemoryMeetingRepository {
	return &InMemoryMeetingRepository{
		seen: make(map[string]struct{}),
	}
}

func (r *InMemoryMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := meeting.Username + "\x00" + meeting.MeetingCode
	if _, ok := r.seen[key]; ok {
		return ErrMeetingDuplicate
	}
	r.seen[key] = struct{}{}
	r.meetings = append(r.meetings, meeting)
	return nil
}

func (r *InMemoryMeetingRepository) ListByUsername(ctx context.Context, username string) ([]*domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Meeting
	for _, m := range r.meetings {
		if m.Username == username {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.After(result[j].JoinedAt)
	})
	return result, nil
}

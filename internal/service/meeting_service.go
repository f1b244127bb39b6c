package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/immxrtalbeast/meshtalk/internal/domain"
	"github.com/immxrtalbeast/meshtalk/internal/repository"
)

type MeetingService struct {
	meetings repository.MeetingRepository
	log      *slog.Logger
}

func NewMeetingService(meetings repository.MeetingRepository, log *slog.Logger) *MeetingService {
	if log == nil {
		log = slog.Default()
	}
	return &MeetingService{meetings: meetings, log: log}
}

// AddToHistory records that the user joined a meeting. Re-joining the same
// code is not an error: the existing record stands and created is false.
func (s *MeetingService) AddToHistory(ctx context.Context, username, meetingCode string) (*domain.Meeting, bool, error) {
	const op = "service.meeting.add"
	log := s.log.With(slog.String("op", op), slog.String("username", username))

	if meetingCode == "" {
		return nil, false, errors.New("meeting code is required")
	}

	meeting := domain.NewMeeting(username, meetingCode)
	if err := s.meetings.Create(ctx, meeting); err != nil {
		if errors.Is(err, repository.ErrMeetingDuplicate) {
			log.Info("meeting already recorded", slog.String("code", meetingCode))
			return nil, false, nil
		}
		return nil, false, err
	}

	log.Info("meeting recorded", slog.String("code", meetingCode))
	return meeting, true, nil
}

func (s *MeetingService) History(ctx context.Context, username string) ([]*domain.Meeting, error) {
	return s.meetings.ListByUsername(ctx, username)
}

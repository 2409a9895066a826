package directory

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"channel-chat/internal/models"
	"channel-chat/internal/store"
)

var (
	ErrInvalidArgument = errors.New("name and creator are required")
	ErrChannelNotFound = errors.New("channel not found")
	ErrCodeExhausted   = errors.New("could not allocate a unique channel code")
)

const (
	codeLength      = 6
	codeAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts = 10
)

// Notifier receives membership changes so live relay sessions can be
// told about them. The relay hub implements it.
type Notifier interface {
	ParticipantJoined(channelID string, user models.User)
}

// Service implements the channel directory operations: create a
// channel, join one by code, and list all channels.
type Service struct {
	store    *store.Store
	notifier Notifier
}

// NewService returns a directory backed by st. notifier may be nil.
func NewService(st *store.Store, notifier Notifier) *Service {
	return &Service{store: st, notifier: notifier}
}

// Create validates the request, allocates a fresh channel code and
// persists a new channel whose only participant is the creator.
func (s *Service) Create(name string, creator models.User) (*models.Channel, error) {
	if name == "" || creator.ID == "" {
		return nil, ErrInvalidArgument
	}

	var created *models.Channel
	err := s.store.Update(func(channels map[string]*models.Channel) error {
		code, err := allocateCode(channels)
		if err != nil {
			return err
		}
		ch := &models.Channel{
			ID:           code,
			Name:         name,
			Code:         code,
			Creator:      creator,
			Participants: []models.User{creator},
			Messages:     []models.Message{},
			CreatedAt:    time.Now().UnixMilli(),
		}
		channels[code] = ch
		created = ch
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("channel created", "code", created.Code, "name", created.Name, "creator", creator.Username)
	return created, nil
}

// Join adds the user to the channel with the given code. Joining a
// channel the user is already in is a no-op, so the call is
// idempotent. Codes match exactly; callers uppercase user input.
func (s *Service) Join(code string, user models.User) (*models.Channel, error) {
	if user.ID == "" {
		return nil, ErrInvalidArgument
	}

	var (
		joined *models.Channel
		added  bool
	)
	err := s.store.Update(func(channels map[string]*models.Channel) error {
		ch, ok := channels[code]
		if !ok {
			return ErrChannelNotFound
		}
		joined = ch
		if ch.HasParticipant(user.ID) {
			return store.ErrNoChange
		}
		ch.Participants = append(ch.Participants, user)
		added = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if added {
		slog.Info("user joined channel", "code", code, "user", user.Username)
		if s.notifier != nil {
			s.notifier.ParticipantJoined(joined.ID, user)
		}
	}
	return joined, nil
}

// List returns the full mapping read fresh from the backing file, so
// it reflects writes from other processes of the store file as well.
func (s *Service) List() map[string]*models.Channel {
	return s.store.ReadAll()
}

// allocateCode draws 6-character uppercase base-36 codes until one is
// free in the mapping. Collisions are vanishingly rare but silently
// overwriting an existing channel would lose its history, so retry.
func allocateCode(channels map[string]*models.Channel) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := channels[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate channel code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

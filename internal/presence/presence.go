// Package presence tracks which balloon runners have a board open, across
// every instance of the service.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	presenceKeyFmt = "presence:user:%s"
	usersKey       = "presence:users"
	presenceTTL    = 5 * time.Minute
)

// Store is the subset of the redis client presence needs.
type Store interface {
	HSet(ctx context.Context, key string, field string, value interface{}) error
	HDel(ctx context.Context, key string, fields ...string) error
	HLen(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SRem(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type Manager struct {
	store      Store
	instanceID string
	now        func() time.Time
	logger     zerolog.Logger
}

func NewManager(store Store, instanceID string, logger zerolog.Logger) *Manager {
	return &Manager{
		store:      store,
		instanceID: instanceID,
		now:        time.Now,
		logger:     logger.With().Str("component", "presence").Logger(),
	}
}

// SetOnline records that userID has a board open on this instance.
func (m *Manager) SetOnline(ctx context.Context, userID string) error {
	if err := m.touch(ctx, userID); err != nil {
		return err
	}
	return m.store.SAdd(ctx, usersKey, userID)
}

// SetOffline removes this instance's entry for userID. The user stays
// listed while another instance still holds one.
func (m *Manager) SetOffline(ctx context.Context, userID string) error {
	key := fmt.Sprintf(presenceKeyFmt, userID)
	if err := m.store.HDel(ctx, key, m.instanceID); err != nil {
		return err
	}
	remaining, err := m.store.HLen(ctx, key)
	if err != nil {
		return err
	}
	if remaining == 0 {
		return m.store.SRem(ctx, usersKey, userID)
	}
	return nil
}

func (m *Manager) IsOnline(ctx context.Context, userID string) (bool, error) {
	count, err := m.store.HLen(ctx, fmt.Sprintf(presenceKeyFmt, userID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// OnlineUsers lists the runners currently online. Entries whose presence
// hash expired are pruned from the index on the way.
func (m *Manager) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := m.store.SMembers(ctx, usersKey)
	if err != nil {
		return nil, err
	}

	online := make([]string, 0, len(users))
	for _, userID := range users {
		isOnline, err := m.IsOnline(ctx, userID)
		if err != nil {
			m.logger.Error().Err(err).Str("userId", userID).Msg("Failed to check presence")
			continue
		}
		if !isOnline {
			if err := m.store.SRem(ctx, usersKey, userID); err != nil {
				m.logger.Warn().Err(err).Str("userId", userID).Msg("Failed to prune presence")
			}
			continue
		}
		online = append(online, userID)
	}
	return online, nil
}

func (m *Manager) RefreshPresence(ctx context.Context, userID string) error {
	return m.touch(ctx, userID)
}

func (m *Manager) touch(ctx context.Context, userID string) error {
	key := fmt.Sprintf(presenceKeyFmt, userID)
	if err := m.store.HSet(ctx, key, m.instanceID, m.now().Unix()); err != nil {
		return err
	}
	return m.store.Expire(ctx, key, presenceTTL)
}

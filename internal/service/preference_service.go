package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/policydesk/api/internal/model"
	"github.com/redis/go-redis/v9"
)

// PreferenceStore keeps each user's default access groups per target
type PreferenceStore interface {
	GetGroups(ctx context.Context, userID, targetID string) ([]string, error)
	SaveGroups(ctx context.Context, userID, targetID string, groupIDs []string) ([]string, error)
}

// PreferenceService stores preferences in Redis
type PreferenceService struct {
	redis *redis.Client
}

func NewPreferenceService(redisClient *redis.Client) *PreferenceService {
	return &PreferenceService{redis: redisClient}
}

func preferenceKey(userID, targetID string) string {
	return fmt.Sprintf("prefs:groups:%s:%s", userID, targetID)
}

// GetGroups returns the saved groups, or nil when nothing was saved
func (s *PreferenceService) GetGroups(ctx context.Context, userID, targetID string) ([]string, error) {
	data, err := s.redis.Get(ctx, preferenceKey(userID, targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preference: %w", err)
	}
	var groups []string
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preference: %w", err)
	}
	return groups, nil
}

// SaveGroups normalizes and stores groupIDs. Preferences do not expire.
func (s *PreferenceService) SaveGroups(ctx context.Context, userID, targetID string, groupIDs []string) ([]string, error) {
	groups := model.NormalizeGroups(groupIDs)
	data, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference: %w", err)
	}
	if err := s.redis.Set(ctx, preferenceKey(userID, targetID), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save preference: %w", err)
	}
	return groups, nil
}

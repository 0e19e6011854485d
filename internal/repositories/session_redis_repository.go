package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"airdropbot/internal/models"
)

const sessionKeyPrefix = "airdrop:session:"

// redisSessionRepository keeps one JSON value per user. Idle expiry is
// delegated to key TTLs, so DeleteIdle is a no-op here.
type redisSessionRepository struct {
	client      redis.UniversalClient
	idleTTL     time.Duration
	terminalTTL time.Duration
}

var _ SessionRepository = (*redisSessionRepository)(nil)

// NewRedisSessionRepository: сессии в Redis; TTL ключа продлевается при каждом Save.
func NewRedisSessionRepository(client redis.UniversalClient, idleTTL, terminalTTL time.Duration) SessionRepository {
	return &redisSessionRepository{client: client, idleTTL: idleTTL, terminalTTL: terminalTTL}
}

func sessionKey(userID int64) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}

func (r *redisSessionRepository) ttlFor(s *models.Session) time.Duration {
	if s.State.Terminal() {
		return r.terminalTTL
	}
	return r.idleTTL
}

func (r *redisSessionRepository) GetOrCreate(ctx context.Context, userID int64) (*models.Session, bool, error) {
	s := newSession(userID, time.Now())
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, false, fmt.Errorf("marshal session: %w", err)
	}
	ok, err := r.client.SetNX(ctx, sessionKey(userID), payload, r.ttlFor(s)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("session create: %w", err)
	}
	if ok {
		return s, true, nil
	}
	existing, err := r.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("session create: user %d expired concurrently", userID)
	}
	return existing, false, nil
}

func (r *redisSessionRepository) Get(ctx context.Context, userID int64) (*models.Session, error) {
	bytes, err := r.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("session get: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(bytes, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !s.State.Valid() {
		return nil, fmt.Errorf("session %d: %w: state %q", userID, ErrInvalidSession, s.State)
	}
	return &s, nil
}

func (r *redisSessionRepository) Save(ctx context.Context, s *models.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.UserID), payload, r.ttlFor(s)).Err(); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) Remove(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, sessionKey(userID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("session remove: %w", err)
	}
	return nil
}

func (r *redisSessionRepository) DeleteIdle(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *redisSessionRepository) DeleteTerminal(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *redisSessionRepository) CountByState(ctx context.Context) (map[models.SessionState]int, error) {
	out := make(map[models.SessionState]int)
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		bytes, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("session count: %w", err)
		}
		var s models.Session
		if err := json.Unmarshal(bytes, &s); err != nil {
			continue
		}
		out[s.State]++
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session count: %w", err)
	}
	return out, nil
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edbox/internal/database"
	"edbox/internal/org"
	"edbox/internal/util"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionNotFound = errors.New("session: not found")

// Principal is the authenticated caller a bearer token resolves to.
type Principal struct {
	SessionID uuid.UUID `json:"session_id"`
	User      org.User  `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store resolves bearer tokens to principals. Resolutions are cached
// in redis so that every socket frame does not cost a database round
// trip; the cache TTL bounds how stale a resolution can get.
type Store struct {
	logger   *slog.Logger
	db       *database.Database
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewStore wires the store. A nil redis client disables caching.
func NewStore(logger *slog.Logger, db *database.Database, rdb *redis.Client, cacheTTL time.Duration) *Store {
	return &Store{
		logger:   logger,
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(token string) string {
	return "session:" + token
}

// Resolve looks up the session behind a bearer token and loads the
// user it belongs to. Expired sessions are deleted on sight.
func (s *Store) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrSessionNotFound
	}

	if principal, ok := s.fromCache(ctx, token); ok {
		return principal, nil
	}

	sess, err := s.db.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return Principal{}, ErrSessionNotFound
		}
		return Principal{}, fmt.Errorf("session: failed to load session: %w", err)
	}

	if time.Now().UTC().After(sess.ExpiresAt) {
		s.evict(ctx, sess, token)
		return Principal{}, ErrSessionNotFound
	}

	row, err := s.db.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			s.evict(ctx, sess, token)
			return Principal{}, ErrSessionNotFound
		}
		return Principal{}, fmt.Errorf("session: failed to load user: %w", err)
	}

	principal := Principal{
		SessionID: sess.ID,
		User: org.User{
			ID:       row.ID,
			SchoolID: row.SchoolID,
			Name:     row.Name,
			Role:     org.Role(row.Role),
		},
		ExpiresAt: sess.ExpiresAt,
	}

	s.toCache(ctx, token, principal)
	return principal, nil
}

// Create opens a session for a user with a fresh random token.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration) (database.Session, error) {
	token, err := util.RandomString(48)
	if err != nil {
		return database.Session{}, fmt.Errorf("session: failed to generate token: %w", err)
	}
	return s.db.CreateSession(ctx, database.CreateSessionParams{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	})
}

// Destroy ends the session behind a token. Unknown tokens are a no-op.
func (s *Store) Destroy(ctx context.Context, token string) error {
	sess, err := s.db.GetSessionByToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("session: failed to load session: %w", err)
	}
	s.evict(ctx, sess, token)
	return nil
}

func (s *Store) fromCache(ctx context.Context, token string) (Principal, bool) {
	if s.redis == nil {
		return Principal{}, false
	}

	data, err := s.redis.Get(ctx, cacheKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "session cache read failed", slog.String("error", err.Error()))
		}
		return Principal{}, false
	}

	var principal Principal
	if err := json.Unmarshal(data, &principal); err != nil {
		return Principal{}, false
	}
	if time.Now().UTC().After(principal.ExpiresAt) {
		s.redis.Del(ctx, cacheKey(token))
		return Principal{}, false
	}
	return principal, true
}

func (s *Store) toCache(ctx context.Context, token string, principal Principal) {
	if s.redis == nil {
		return
	}

	ttl := s.cacheTTL
	if remaining := time.Until(principal.ExpiresAt); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(principal)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey(token), data, ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "session cache write failed", slog.String("error", err.Error()))
	}
}

func (s *Store) evict(ctx context.Context, sess database.Session, token string) {
	if err := s.db.DeleteSessionByID(ctx, sess.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session", slog.String("error", err.Error()))
	}
	if s.redis != nil {
		s.redis.Del(ctx, cacheKey(token))
	}
}

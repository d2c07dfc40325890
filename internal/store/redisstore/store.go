package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

// Refresh tokens: refresh:<token> -> user id.

func (s *Store) SaveRefreshToken(ctx context.Context, token string, userID uint64, ttl time.Duration) error {
	return s.rdb.Set(ctx, "refresh:"+token, strconv.FormatUint(userID, 10), ttl).Err()
}

// UserIDForRefreshToken returns redis.Nil when the token is unknown or expired.
func (s *Store) UserIDForRefreshToken(ctx context.Context, token string) (uint64, error) {
	v, err := s.rdb.Get(ctx, "refresh:"+token).Result()
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func (s *Store) DeleteRefreshToken(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, "refresh:"+token).Err()
}

// Password-reset codes: reset:<email> -> code.

func (s *Store) SaveResetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, "reset:"+email, code, ttl).Err()
}

func (s *Store) GetResetCode(ctx context.Context, email string) (string, error) {
	return s.rdb.Get(ctx, "reset:"+email).Result()
}

func (s *Store) DeleteResetCode(ctx context.Context, email string) error {
	return s.rdb.Del(ctx, "reset:"+email).Err()
}

// Package redis implements the durable score store on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/scoreboard/internal/domain/ingest"
	"github.com/okian/scoreboard/internal/domain/model"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "scoreboard",
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store keeps one hash per player plus a sorted set used to list the best
// scores:
//   - {prefix}:player:{id} -> hash{score, display_name}
//   - {prefix}:scores      -> zset(member=id, score=score)
//
// The hash is authoritative; the sorted set orders players and is exact for
// scores within ±2^53.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config.KeyPrefix), nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultConfig().KeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) playerKey(id string) string { return s.prefix + ":player:" + id }
func (s *Store) scoresKey() string         { return s.prefix + ":scores" }

const (
	replyExists  = "RECORD_EXISTS"
	replyMissing = "RECORD_MISSING"
)

// upsertScript writes the player hash and sorted-set entry atomically and
// enforces the insert/update split.
var upsertScript = redis.NewScript(`
	local present = redis.call('EXISTS', KEYS[1]) == 1
	if ARGV[4] == 'insert' and present then
		return redis.error_reply('RECORD_EXISTS')
	end
	if ARGV[4] == 'update' and not present then
		return redis.error_reply('RECORD_MISSING')
	end
	redis.call('HSET', KEYS[1], 'score', ARGV[2], 'display_name', ARGV[3])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
`)

// FindCurrentScore returns the stored record for playerID.
func (s *Store) FindCurrentScore(ctx context.Context, playerID string) (model.ScoreRecord, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.playerKey(playerID)).Result()
	if err != nil {
		return model.ScoreRecord{}, false, fmt.Errorf("failed to read score: %w", err)
	}
	if len(fields) == 0 {
		return model.ScoreRecord{}, false, nil
	}
	rec, err := decode(playerID, fields)
	if err != nil {
		return model.ScoreRecord{}, false, err
	}
	return rec, true, nil
}

// Upsert inserts rec when exists is false and overwrites it otherwise.
func (s *Store) Upsert(ctx context.Context, rec model.ScoreRecord, exists bool) error {
	mode := "insert"
	if exists {
		mode = "update"
	}
	keys := []string{s.playerKey(rec.PlayerID), s.scoresKey()}
	err := upsertScript.Run(ctx, s.client, keys, rec.PlayerID, rec.Score, rec.DisplayName, mode).Err()
	switch {
	case err == nil:
		return nil
	case strings.Contains(err.Error(), replyExists):
		return fmt.Errorf("%w: %s", ingest.ErrRecordExists, rec.PlayerID)
	case strings.Contains(err.Error(), replyMissing):
		return fmt.Errorf("%w: %s", ingest.ErrRecordMissing, rec.PlayerID)
	default:
		return fmt.Errorf("failed to write score: %w", err)
	}
}

// TopScores returns up to n records, best first.
func (s *Store) TopScores(ctx context.Context, n int) ([]model.ScoreRecord, error) {
	if n < 1 {
		return nil, errors.New("limit must be positive")
	}
	ids, err := s.client.ZRevRange(ctx, s.scoresKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	if len(ids) == 0 {
		return []model.ScoreRecord{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.playerKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}

	out := make([]model.ScoreRecord, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decode(ids[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of stored players.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.scoresKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}
	return int(n), nil
}

func decode(playerID string, fields map[string]string) (model.ScoreRecord, error) {
	score, err := strconv.ParseInt(fields["score"], 10, 64)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("corrupt score for %s: %w", playerID, err)
	}
	return model.ScoreRecord{PlayerID: playerID, Score: score, DisplayName: fields["display_name"]}, nil
}

package budget

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// RedisStore persists budget records in Redis as JSON blobs, for
// deployments that want budget state to survive a process restart
// without standing up a full database repository.
type RedisStore struct {
	Client redis.Cmdable
	Prefix string
}

type wireRecord struct {
	PrincipalID  string  `json:"principal_id"`
	LimitUSD     float64 `json:"limit_usd"`
	Period       Period  `json:"period"`
	CurrentSpend float64 `json:"current_spend"`
	ResetAtUnix  int64   `json:"reset_at"`
	UpdatedAtUnix int64  `json:"updated_at"`
}

func (s *RedisStore) key(principalID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "budget:"
	}
	return prefix + principalID
}

func (s *RedisStore) Get(ctx context.Context, principalID string) (*Record, bool, error) {
	raw, err := s.Client.Get(ctx, s.key(principalID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var w wireRecord
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, false, err
	}
	return &Record{
		PrincipalID:  w.PrincipalID,
		LimitUSD:     w.LimitUSD,
		Period:       w.Period,
		CurrentSpend: w.CurrentSpend,
		ResetAt:      unixToTime(w.ResetAtUnix),
		UpdatedAt:    unixToTime(w.UpdatedAtUnix),
	}, true, nil
}

func (s *RedisStore) Save(ctx context.Context, record *Record) error {
	w := wireRecord{
		PrincipalID:   record.PrincipalID,
		LimitUSD:      record.LimitUSD,
		Period:        record.Period,
		CurrentSpend:  record.CurrentSpend,
		ResetAtUnix:   record.ResetAt.Unix(),
		UpdatedAtUnix: record.UpdatedAt.Unix(),
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(record.PrincipalID), raw, 0).Err()
}

package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/debtdesk/caseflow/internal/domain"
)

// ─── Redis-backed Ledger ────────────────────────────────────────────────────
// Shares duplicate-suppression history between consumer processes.
//
// Layout (prefix "caseflow:ledger:payments"):
//
//	<prefix>:seq   INCR counter, gives every member an insertion sequence
//	<prefix>:keys  ZSET member → sequence; rank 0 is the oldest member
//
// The same bound as the in-memory Set applies: once ZCARD exceeds
// MaxEntries the EvictCount lowest-ranked members are removed, in the same
// server-side script as the insert.

// Redis is a bounded set of strings stored in a Redis sorted set.
type Redis struct {
	client  redis.UniversalClient
	cfg     Config
	seqKey  string
	keysKey string
}

// NewRedis creates a Redis ledger under the given key prefix.
func NewRedis(client redis.UniversalClient, prefix string, cfg Config) *Redis {
	return &Redis{
		client:  client,
		cfg:     cfg.Normalized(),
		seqKey:  prefix + ":seq",
		keysKey: prefix + ":keys",
	}
}

// Contains implements domain.Ledger.
func (r *Redis) Contains(ctx context.Context, key domain.PaymentKey) (bool, error) {
	return r.has(ctx, key.Encode())
}

// Mark implements domain.Ledger.
func (r *Redis) Mark(ctx context.Context, key domain.PaymentKey) error {
	return r.add(ctx, key.Encode())
}

// Len implements domain.Ledger.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.keysKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", r.keysKey, err)
	}
	return int(n), nil
}

// Seen reports whether the event ID is resident.
func (r *Redis) Seen(ctx context.Context, eventID string) (bool, error) {
	return r.has(ctx, eventID)
}

// Remember records the event ID.
func (r *Redis) Remember(ctx context.Context, eventID string) error {
	return r.add(ctx, eventID)
}

func (r *Redis) has(ctx context.Context, member string) (bool, error) {
	err := r.client.ZScore(ctx, r.keysKey, member).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("zscore %s: %w", r.keysKey, err)
	}
	return true, nil
}

// addScript inserts ARGV[1] with the next sequence number and trims the
// oldest ARGV[3] members once the set exceeds ARGV[2]. Redis runs it
// atomically, so each overflow is trimmed exactly once.
var addScript = redis.NewScript(`
local seq = redis.call('INCR', KEYS[1])
if redis.call('ZADD', KEYS[2], 'NX', seq, ARGV[1]) == 0 then
	return 0
end
if redis.call('ZCARD', KEYS[2]) > tonumber(ARGV[2]) then
	redis.call('ZREMRANGEBYRANK', KEYS[2], 0, tonumber(ARGV[3]) - 1)
end
return 1
`)

func (r *Redis) add(ctx context.Context, member string) error {
	err := addScript.Run(ctx, r.client, []string{r.seqKey, r.keysKey},
		member, r.cfg.MaxEntries, r.cfg.EvictCount).Err()
	if err != nil {
		return fmt.Errorf("add to %s: %w", r.keysKey, err)
	}
	return nil
}

// Package quota tracks the daily Data API budget of every configured key and
// hands out keys that can still afford a call.
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults match the Data API's per-project daily budget.
const (
	DefaultDailyCeiling  = 10000
	DefaultResetInterval = 24 * time.Hour
	DefaultCooldown      = time.Hour
)

// ErrExhausted is returned when no key can afford the requested cost.
// Callers should move to a tier that does not need quota rather than retry.
var ErrExhausted = errors.New("quota: all api keys exhausted")

// ErrNoKeys is returned when the ledger was built without keys.
var ErrNoKeys = errors.New("quota: no api keys configured")

// Config configures a Ledger.
type Config struct {
	// DailyCeiling is the budget a key is replenished to. Default: 10000
	DailyCeiling int
	// ResetInterval is how long a budget lasts. Default: 24h
	ResetInterval time.Duration
	// Cooldown is how long a key rests after its budget hits zero. Default: 1h
	Cooldown time.Duration
	// Now returns the current time. Default: time.Now
	Now func() time.Time
	// Logger receives rotation and reset events. Default: no-op
	Logger *zap.Logger
}

// KeyRecord is the ledger's view of one key.
type KeyRecord struct {
	Key           string    `json:"key"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// Reservation is a successful debit.
type Reservation struct {
	Key       string
	Index     int
	Cost      int
	Remaining int
}

// Ledger owns every KeyRecord. All reads and writes go through one mutex so
// the check-then-debit sequence is atomic across concurrent callers.
type Ledger struct {
	mu      sync.Mutex
	keys    []*KeyRecord
	current int
	config  Config
	logger  *zap.Logger
}

// NewLedger creates a ledger with every key at the full daily ceiling.
func NewLedger(keys []string, cfg Config) *Ledger {
	if cfg.DailyCeiling <= 0 {
		cfg.DailyCeiling = DefaultDailyCeiling
	}
	if cfg.ResetInterval <= 0 {
		cfg.ResetInterval = DefaultResetInterval
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := cfg.Now()
	records := make([]*KeyRecord, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		records = append(records, &KeyRecord{
			Key:       k,
			Remaining: cfg.DailyCeiling,
			ResetAt:   now.Add(cfg.ResetInterval),
		})
	}

	return &Ledger{
		keys:   records,
		config: cfg,
		logger: logger.Named("quota"),
	}
}

// Len returns the number of keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Reserve picks a key that can afford cost and debits it before returning.
// The current key is tried first; otherwise the remaining keys are scanned
// once, starting after the current one.
func (l *Ledger) Reserve(cost int) (Reservation, error) {
	if cost < 0 {
		return Reservation{}, fmt.Errorf("quota: negative cost %d", cost)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.keys) == 0 {
		return Reservation{}, ErrNoKeys
	}

	now := l.config.Now()
	l.resetDue(now)

	idx, ok := l.scan(l.current, cost, now)
	if !ok {
		return Reservation{}, fmt.Errorf("%w: cost %d over %d keys", ErrExhausted, cost, len(l.keys))
	}
	if idx != l.current {
		l.logger.Info("rotated api key", zap.Int("from", l.current), zap.Int("to", idx))
		l.current = idx
	}

	rec := l.keys[idx]
	rec.Remaining -= cost
	if rec.Remaining <= 0 {
		rec.Remaining = 0
		l.startCooldown(rec, now)
	}

	return Reservation{Key: rec.Key, Index: idx, Cost: cost, Remaining: rec.Remaining}, nil
}

// Rotate moves the current pointer to the next key able to afford cost and
// returns its index. It does not debit.
func (l *Ledger) Rotate(cost int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.keys) == 0 {
		return 0, ErrNoKeys
	}

	now := l.config.Now()
	l.resetDue(now)

	idx, ok := l.scan(l.current+1, cost, now)
	if !ok {
		return l.current, ErrExhausted
	}
	l.current = idx
	return idx, nil
}

// MarkExhausted records that the provider rejected key for quota reasons: its
// budget drops to zero, it enters cooldown, and the current pointer moves on.
func (l *Ledger) MarkExhausted(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.config.Now()
	for i, rec := range l.keys {
		if rec.Key != key {
			continue
		}
		rec.Remaining = 0
		l.startCooldown(rec, now)
		l.logger.Warn("api key exhausted", zap.Int("key_index", i), zap.Time("cooldown_until", rec.CooldownUntil))
		if i == l.current && len(l.keys) > 1 {
			l.current = (i + 1) % len(l.keys)
		}
		return
	}
}

// Snapshot returns a copy of every key record.
func (l *Ledger) Snapshot() []KeyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]KeyRecord, len(l.keys))
	for i, rec := range l.keys {
		out[i] = *rec
	}
	return out
}

// Restore overwrites the state of keys present in records. Unknown keys are
// ignored so a snapshot taken with a different key set is safe to load.
func (l *Ledger) Restore(records []KeyRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byKey := make(map[string]KeyRecord, len(records))
	for _, r := range records {
		byKey[r.Key] = r
	}
	for _, rec := range l.keys {
		r, ok := byKey[rec.Key]
		if !ok {
			continue
		}
		rec.Remaining = min(max(r.Remaining, 0), l.config.DailyCeiling)
		rec.ResetAt = r.ResetAt
		rec.CooldownUntil = r.CooldownUntil
	}
}

// Current returns the index of the key Reserve tries first.
func (l *Ledger) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// scan looks for a usable key, starting at start and wrapping once. Each key
// is examined at most once per call. Must be called with mutex held.
func (l *Ledger) scan(start, cost int, now time.Time) (int, bool) {
	n := len(l.keys)
	visited := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if _, seen := visited[idx]; seen {
			continue
		}
		visited[idx] = struct{}{}
		if usable(l.keys[idx], cost, now) {
			return idx, true
		}
	}
	return 0, false
}

// resetDue replenishes every key whose reset time has passed.
// Must be called with mutex held.
func (l *Ledger) resetDue(now time.Time) {
	for i, rec := range l.keys {
		if now.Before(rec.ResetAt) {
			continue
		}
		rec.Remaining = l.config.DailyCeiling
		rec.CooldownUntil = time.Time{}
		for !now.Before(rec.ResetAt) {
			rec.ResetAt = rec.ResetAt.Add(l.config.ResetInterval)
		}
		l.logger.Info("api key quota reset", zap.Int("key_index", i), zap.Time("next_reset", rec.ResetAt))
	}
}

// startCooldown rests rec for the configured cooldown. The reset is pushed
// past the cooldown so a due reset cannot revive the key early.
// Must be called with mutex held.
func (l *Ledger) startCooldown(rec *KeyRecord, now time.Time) {
	rec.CooldownUntil = now.Add(l.config.Cooldown)
	if rec.ResetAt.Before(rec.CooldownUntil) {
		rec.ResetAt = rec.CooldownUntil
	}
}

func usable(rec *KeyRecord, cost int, now time.Time) bool {
	return rec.Remaining >= cost && !now.Before(rec.CooldownUntil)
}

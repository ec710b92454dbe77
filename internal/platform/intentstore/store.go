package intentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seaside-charters/api/internal/domain"
)

// DefaultKeyPrefix namespaces booking intents in Redis.
const DefaultKeyPrefix = "booking-intent:"

var (
	// ErrNotFound indicates the intent expired, was never written or was already taken.
	ErrNotFound = errors.New("intentstore: intent not found")
	// ErrUnavailable indicates the backing store could not be reached.
	ErrUnavailable = errors.New("intentstore: store unavailable")
	// ErrCorrupt indicates a stored payload could not be decoded into an intent.
	ErrCorrupt = errors.New("intentstore: intent payload corrupt")
)

// CorruptIntentError keeps the undecodable payload. When it comes from Take the key is already gone,
// so Raw is the only remaining copy of the order.
type CorruptIntentError struct {
	OrderID string
	Raw     []byte
	Err     error
}

func (e *CorruptIntentError) Error() string {
	return fmt.Sprintf("intentstore: decode %s: %v", e.OrderID, e.Err)
}

func (e *CorruptIntentError) Is(target error) bool { return target == ErrCorrupt }

func (e *CorruptIntentError) Unwrap() error { return e.Err }

// Store persists pending booking intents between checkout and payment confirmation.
type Store interface {
	Put(ctx context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error
	// Take atomically reads and deletes the intent so at most one caller observes it.
	Take(ctx context.Context, orderID string) (domain.BookingIntent, error)
	// Restore writes an intent back after a failed finalisation so a retried webhook can succeed.
	Restore(ctx context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error
	Get(ctx context.Context, orderID string) (domain.BookingIntent, error)
}

// RedisStore keeps intents as JSON strings with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("intentstore: redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// Put stores the intent, replacing any previous value for orderID.
func (s *RedisStore) Put(ctx context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error {
	payload, err := encode(orderID, intent)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(orderID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrUnavailable, orderID, err)
	}
	return nil
}

// Take reads and deletes the intent in a single GETDEL.
func (s *RedisStore) Take(ctx context.Context, orderID string) (domain.BookingIntent, error) {
	raw, err := s.client.GetDel(ctx, s.key(orderID)).Bytes()
	return decode(orderID, raw, err)
}

// Restore re-inserts an intent only when no value exists for orderID.
func (s *RedisStore) Restore(ctx context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error {
	payload, err := encode(orderID, intent)
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, s.key(orderID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: restore %s: %v", ErrUnavailable, orderID, err)
	}
	return nil
}

// Get reads the intent without consuming it.
func (s *RedisStore) Get(ctx context.Context, orderID string) (domain.BookingIntent, error) {
	raw, err := s.client.Get(ctx, s.key(orderID)).Bytes()
	return decode(orderID, raw, err)
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(orderID string) string {
	return s.prefix + orderID
}

func decode(orderID string, raw []byte, err error) (domain.BookingIntent, error) {
	if errors.Is(err, redis.Nil) {
		return domain.BookingIntent{}, ErrNotFound
	}
	if err != nil {
		return domain.BookingIntent{}, fmt.Errorf("%w: get %s: %v", ErrUnavailable, orderID, err)
	}
	var intent domain.BookingIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return domain.BookingIntent{}, &CorruptIntentError{OrderID: orderID, Raw: append([]byte(nil), raw...), Err: err}
	}
	return intent, nil
}

func encode(orderID string, intent domain.BookingIntent) ([]byte, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, errors.New("intentstore: order id is required")
	}
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("intentstore: encode %s: %w", orderID, err)
	}
	return payload, nil
}

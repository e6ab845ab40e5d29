package notify

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrCodeNotFound means no live code exists for the address.
var ErrCodeNotFound = errors.New("verification code expired or not found")

// CodeTTL is how long a reset code stays valid.
const CodeTTL = 5 * time.Minute

// MaxCodeAttempts is the number of wrong guesses after which a code is
// discarded.
const MaxCodeAttempts = 5

// CodeStore keeps one pending code per email address.
type CodeStore interface {
	Set(ctx context.Context, email, code string, ttl time.Duration) error
	Get(ctx context.Context, email string) (string, error)
	Delete(ctx context.Context, email string) error
	// Fail records a wrong guess for email and returns the number of wrong
	// guesses since the code was set.
	Fail(ctx context.Context, email string) (int, error)
}

// GenerateCode returns a random six digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func codeKey(email string) string {
	return "email_code_" + email
}

func attemptsKey(email string) string {
	return "email_code_attempts_" + email
}

type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(url string) (*RedisCodeStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCodeStore{client: redis.NewClient(opts)}, nil
}

func NewRedisCodeStoreFromClient(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCodeStore) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codeKey(email), code, ttl)
	pipe.Del(ctx, attemptsKey(email))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisCodeStore) Get(ctx context.Context, email string) (string, error) {
	code, err := s.client.Get(ctx, codeKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeNotFound
	}
	return code, err
}

func (s *RedisCodeStore) Delete(ctx context.Context, email string) error {
	return s.client.Del(ctx, codeKey(email), attemptsKey(email)).Err()
}

func (s *RedisCodeStore) Fail(ctx context.Context, email string) (int, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, attemptsKey(email))
	pipe.Expire(ctx, attemptsKey(email), CodeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (s *RedisCodeStore) Close() error {
	return s.client.Close()
}

type memoryCode struct {
	code    string
	expires time.Time
	misses  int
}

// MemoryCodeStore keeps codes in process memory.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	now   func() time.Time
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: map[string]memoryCode{}, now: time.Now}
}

func (s *MemoryCodeStore) Set(_ context.Context, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = memoryCode{code: code, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[email]
	if !ok {
		return "", ErrCodeNotFound
	}
	if s.now().After(c.expires) {
		delete(s.codes, email)
		return "", ErrCodeNotFound
	}
	return c.code, nil
}

func (s *MemoryCodeStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, email)
	return nil
}

func (s *MemoryCodeStore) Fail(_ context.Context, email string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[email]
	if !ok {
		return 0, nil
	}
	c.misses++
	s.codes[email] = c
	return c.misses, nil
}

// FallbackCodeStore uses Primary and switches to Secondary for any call where
// Primary fails with something other than ErrCodeNotFound.
type FallbackCodeStore struct {
	Primary   CodeStore
	Secondary CodeStore
	Log       logrus.FieldLogger
}

func (s *FallbackCodeStore) Set(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := s.Primary.Set(ctx, email, code, ttl); err != nil {
		s.Log.WithError(err).Warn("code store unavailable, using memory")
		return s.Secondary.Set(ctx, email, code, ttl)
	}
	return nil
}

func (s *FallbackCodeStore) Get(ctx context.Context, email string) (string, error) {
	code, err := s.Primary.Get(ctx, email)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, ErrCodeNotFound) {
		s.Log.WithError(err).Warn("code store unavailable, using memory")
	}
	// the code may have been written to memory while the primary was down
	return s.Secondary.Get(ctx, email)
}

func (s *FallbackCodeStore) Delete(ctx context.Context, email string) error {
	if err := s.Primary.Delete(ctx, email); err != nil {
		s.Log.WithError(err).Warn("code store unavailable, using memory")
	}
	return s.Secondary.Delete(ctx, email)
}

func (s *FallbackCodeStore) Fail(ctx context.Context, email string) (int, error) {
	n, err := s.Primary.Fail(ctx, email)
	if err != nil {
		s.Log.WithError(err).Warn("code store unavailable, using memory")
		return s.Secondary.Fail(ctx, email)
	}
	return n, nil
}

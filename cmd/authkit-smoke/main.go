// Command authkit-smoke runs an end-to-end pass of the auth lifecycle
// against a real Redis: login, authenticate, refresh with rotation, reuse
// rejection, logout, and revocation check. Operators run it after deploys
// or Redis maintenance to confirm the session path is healthy.
//
//	authkit-smoke -redis localhost:6379
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	authkit "github.com/wellport-health/authkit"
	"github.com/wellport-health/authkit/password"
)

type singleUser struct {
	mu   sync.Mutex
	user authkit.UserRecord
}

func (s *singleUser) GetUserByEmail(_ context.Context, email string) (authkit.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email != s.user.Email {
		return authkit.UserRecord{}, errors.New("not found")
	}
	return s.user, nil
}

func (s *singleUser) GetUserByID(_ context.Context, id string) (authkit.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.user.UserID {
		return authkit.UserRecord{}, errors.New("not found")
	}
	return s.user, nil
}

func (s *singleUser) IncrementFailedAttempts(context.Context, string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.FailedAttempts++
	return s.user.FailedAttempts, nil
}

func (s *singleUser) ResetFailedAttempts(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.FailedAttempts = 0
	s.user.LockedUntil = time.Time{}
	return nil
}

func (s *singleUser) LockAccount(_ context.Context, _ string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user.LockedUntil = until
	return nil
}

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "redis address")
	timeout := flag.Duration("timeout", 10*time.Second, "overall deadline")
	flag.Parse()

	if err := run(*redisAddr, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "smoke: FAIL:", err)
		os.Exit(1)
	}
	fmt.Println("smoke: OK")
}

func run(redisAddr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}

	hasher, err := password.NewHasher(password.Config{
		Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		return err
	}
	const pass = "smoke-test-password"
	hash, err := hasher.Hash(pass)
	if err != nil {
		return err
	}

	users := &singleUser{user: authkit.UserRecord{
		UserID: "smoke-user", Email: "smoke@wellport.invalid",
		PasswordHash: hash, Role: "patient", Status: authkit.StatusActive,
	}}

	config := authkit.DefaultConfig()
	config.Token.AccessSecret = []byte("smoke-access-secret-smoke-access-sec!!!")
	config.Token.RefreshSecret = []byte("smoke-refresh-secret-smoke-refresh-s!!!")
	config.Session.RedisPrefix = "wp-smoke"

	engine, err := authkit.New().
		WithConfig(config).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(zap.NewNop()).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	pair, err := engine.Login(ctx, users.user.Email, pass)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	if _, err := engine.Authenticate(ctx, pair.AccessToken); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if rotated.SessionID == pair.SessionID {
		return errors.New("refresh did not rotate the session id")
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken); !errors.Is(err, authkit.ErrTokenInvalid) {
		return fmt.Errorf("consumed refresh token accepted again: %v", err)
	}

	if err := engine.Logout(ctx, rotated.SessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if _, err := engine.Authenticate(ctx, rotated.AccessToken); !errors.Is(err, authkit.ErrSessionRevoked) {
		return fmt.Errorf("revoked session still authenticates: %v", err)
	}

	return nil
}

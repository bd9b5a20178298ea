package service

// Shared fakes for the service tests. The session store and the outbox
// are real; only the HTTP client and the drain kick are faked.

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alessandrolsdev/ledgersync/internal/model"
	"github.com/alessandrolsdev/ledgersync/internal/outbox"
	"github.com/alessandrolsdev/ledgersync/internal/session"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = append([]byte{}, value...)
	return nil
}

func (f *fakeKV) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// fakeClient covers both Authenticator and WriteClient.
type fakeClient struct {
	mu sync.Mutex

	loginToken string
	loginErr   error
	logins     []string

	createErr error
	created   []model.PendingWrite
	attempted []model.PendingWrite

	identities map[string]*model.Identity
	fetches    int
}

func newFakeClient() *fakeClient {
	return &fakeClient{identities: make(map[string]*model.Identity)}
}

func (f *fakeClient) Login(ctx context.Context, username, secret string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, username)
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.loginToken, nil
}

func (f *fakeClient) FetchIdentity(ctx context.Context, token string) (*model.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	ident, ok := f.identities[token]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return ident, nil
}

func (f *fakeClient) CreateTransaction(ctx context.Context, token string, w model.PendingWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempted = append(f.attempted, w)
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, w)
	return nil
}

func (f *fakeClient) attemptedWrites() []model.PendingWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.PendingWrite{}, f.attempted...)
}

func (f *fakeClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *fakeClient) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeKicker records drain kicks.
type fakeKicker struct {
	mu    sync.Mutex
	kicks int
}

func (f *fakeKicker) AttemptDrain(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
}

func (f *fakeKicker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kicks
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForReadiness(t *testing.T, s *session.Store, want session.Readiness) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Readiness() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("readiness = %v, want %v", s.Readiness(), want)
}

func newQueue(t *testing.T, kv *fakeKV) *outbox.Queue {
	t.Helper()
	q, err := outbox.Open(context.Background(), kv, testLogger())
	if err != nil {
		t.Fatalf("outbox.Open() error = %v", err)
	}
	return q
}

package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tubepulse/accounts/internal/logging"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/metrics"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/ratelimit"
	"github.com/tubepulse/accounts/internal/server/repositories/memory"
	"golang.org/x/crypto/bcrypt"
)

type sentEmail struct {
	kind, to, token, name string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	fail error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, token, name string) error {
	return n.record("verification", to, token, name)
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, to, token, name string) error {
	return n.record("reset", to, token, name)
}

func (n *recordingNotifier) record(kind, to, token, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind, to, token, name})
	return n.fail
}

func (n *recordingNotifier) last(t *testing.T) sentEmail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no email sent")
	return n.sent[len(n.sent)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// testClock starts at the real time so that sessions compare sensibly with
// credential expiries computed by the issuer.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *AccountService
	store    *memory.Store
	notifier *recordingNotifier
	clock    *testClock
	metrics  *metrics.Metrics
}

type fixtureOption func(*Deps, *Policy)

func withPolicy(fn func(*Policy)) fixtureOption {
	return func(_ *Deps, p *Policy) { fn(p) }
}

func withLimiter(l ratelimit.Limiter) fixtureOption {
	return func(d *Deps, _ *Policy) { d.Limiter = l }
}

func withLog(l logging.Logger) fixtureOption {
	return func(d *Deps, _ *Policy) { d.Log = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  []byte("test-access"),
		RefreshSecret: []byte("test-refresh"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "tubepulse",
	})
	require.NoError(t, err)

	store := memory.New()
	notifier := &recordingNotifier{}
	m := metrics.New(prometheus.NewRegistry())

	deps := Deps{
		Store:    store,
		Repos:    store,
		Hasher:   auth.NewHasher(bcrypt.MinCost, 4),
		Issuer:   issuer,
		Notifier: notifier,
		Metrics:  m,
	}
	policy := DefaultPolicy()
	policy.AutoVerifyEmail = true
	for _, opt := range opts {
		opt(&deps, &policy)
	}

	svc := NewAccountService(deps, policy)
	clock := &testClock{t: time.Now()}
	svc.now = clock.Now

	return &fixture{svc: svc, store: store, notifier: notifier, clock: clock, metrics: m}
}

func (f *fixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: password, Name: "Test"}, models.SessionMeta{})
	require.NoError(t, err)
	return res
}

func (f *fixture) login(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), email, password, models.SessionMeta{})
	require.NoError(t, err)
	return res
}

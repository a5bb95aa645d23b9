package identity_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/identity"
	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/jrsteele09/minis-web/internal/testutil/fakeapi"
	"github.com/stretchr/testify/require"
)

// countingChecker answers CheckToken from a fixed table and counts calls.
type countingChecker struct {
	calls   int32
	delay   time.Duration
	heads   map[string]api.UserHead
	failErr error
}

func (c *countingChecker) CheckToken(_ context.Context, token string) (api.UserHead, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.failErr != nil {
		return api.UserHead{}, c.failErr
	}
	head, ok := c.heads[token]
	if !ok {
		return api.UserHead{}, api.ErrUnauthorized
	}
	return head, nil
}

func TestInitials(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Anna Muster", "AM"},
		{"Max Mustermann", "MM"},
		{"  Lena   Maria  Berger ", "LMB"},
		{"Jonas Öztürk", "JÖ"},
		{"Cher", "C"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, identity.Initials(tt.name))
		})
	}
}

func TestResolve(t *testing.T) {
	checker := &countingChecker{heads: map[string]api.UserHead{
		"tok-anna": {ID: 1, Name: "Anna Muster", RoleID: api.RoleAdministrator},
	}}
	r, err := identity.NewResolver(checker, 16)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("resolves once per token", func(t *testing.T) {
		require.Equal(t, identity.Unresolved, r.State("tok-anna"))

		id, err := r.Resolve(ctx, "tok-anna")
		require.NoError(t, err)
		require.Equal(t, identity.Identity{UserID: 1, Name: "Anna Muster", Initials: "AM", Role: api.RoleAdministrator}, id)
		require.Equal(t, identity.Resolved, r.State("tok-anna"))

		_, err = r.Resolve(ctx, "tok-anna")
		require.NoError(t, err)
		require.EqualValues(t, 1, atomic.LoadInt32(&checker.calls))
	})

	t.Run("401 invalidates", func(t *testing.T) {
		_, err := r.Resolve(ctx, "tok-unknown")
		require.ErrorIs(t, err, apperrors.ErrInvalidSession)
		require.Equal(t, identity.Invalid, r.State("tok-unknown"))

		before := atomic.LoadInt32(&checker.calls)
		_, err = r.Resolve(ctx, "tok-unknown")
		require.ErrorIs(t, err, apperrors.ErrInvalidSession)
		require.Equal(t, before, atomic.LoadInt32(&checker.calls))
	})

	t.Run("forget re-enters unresolved", func(t *testing.T) {
		r.Forget("tok-anna")
		require.Equal(t, identity.Unresolved, r.State("tok-anna"))
	})

	t.Run("invalidate resolved token", func(t *testing.T) {
		_, err := r.Resolve(ctx, "tok-anna")
		require.NoError(t, err)
		r.Invalidate("tok-anna")
		_, err = r.Resolve(ctx, "tok-anna")
		require.ErrorIs(t, err, apperrors.ErrInvalidSession)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := r.Resolve(ctx, "")
		require.ErrorIs(t, err, apperrors.ErrNoToken)
	})
}

func TestResolveTransientFailureStaysUnresolved(t *testing.T) {
	checker := &countingChecker{failErr: &api.RequestError{Method: "GET", Path: "/checkToken", Status: 503}}
	r, err := identity.NewResolver(checker, 0)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "tok")
	require.Error(t, err)
	require.False(t, errors.Is(err, apperrors.ErrInvalidSession))
	require.Equal(t, identity.Unresolved, r.State("tok"))

	checker.failErr = nil
	checker.heads = map[string]api.UserHead{"tok": {ID: 2, Name: "Max Mustermann", RoleID: api.RoleMinistrant}}
	id, err := r.Resolve(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "MM", id.Initials)
	require.EqualValues(t, 2, atomic.LoadInt32(&checker.calls))
}

func TestResolveConcurrentCallsShareOneRequest(t *testing.T) {
	checker := &countingChecker{
		delay: 50 * time.Millisecond,
		heads: map[string]api.UserHead{"tok": {ID: 4, Name: "Paul Huber", RoleID: api.RoleOberministrant}},
	}
	r, err := identity.NewResolver(checker, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "tok")
			require.NoError(t, err)
			require.Equal(t, "PH", id.Initials)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&checker.calls))
}

func TestAnyUnauthorizedCallInvalidatesSession(t *testing.T) {
	fake := fakeapi.New()
	t.Cleanup(fake.Close)

	client, err := api.New(fake.URL())
	require.NoError(t, err)
	r, err := identity.NewResolver(client, 16)
	require.NoError(t, err)
	client.SetUnauthorizedHook(r.Invalidate)

	ctx := context.Background()
	tok := fake.IssueToken(2, time.Hour)
	_, err = r.Resolve(ctx, tok)
	require.NoError(t, err)

	fake.Revoke(tok)
	_, err = client.BanDates(ctx, tok, 2)
	require.ErrorIs(t, err, api.ErrUnauthorized)

	require.Equal(t, identity.Invalid, r.State(tok))
	_, err = r.Resolve(ctx, tok)
	require.ErrorIs(t, err, apperrors.ErrInvalidSession)
}

// blockingChecker holds every CheckToken until release is closed.
type blockingChecker struct {
	calls   int32
	started chan struct{}
	release chan struct{}
}

func (c *blockingChecker) CheckToken(_ context.Context, _ string) (api.UserHead, error) {
	if atomic.AddInt32(&c.calls, 1) == 1 {
		close(c.started)
	}
	<-c.release
	return api.UserHead{ID: 2, Name: "Max Mustermann", RoleID: api.RoleMinistrant}, nil
}

func TestTokenDroppedWhileResolving(t *testing.T) {
	t.Run("invalidate wins over a late answer", func(t *testing.T) {
		checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{})}
		r, err := identity.NewResolver(checker, 16)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := r.Resolve(context.Background(), "tok")
			done <- err
		}()
		<-checker.started
		require.Equal(t, identity.Resolving, r.State("tok"))

		r.Invalidate("tok")
		close(checker.release)
		require.ErrorIs(t, <-done, apperrors.ErrInvalidSession)
		require.Equal(t, identity.Invalid, r.State("tok"))

		_, err = r.Resolve(context.Background(), "tok")
		require.ErrorIs(t, err, apperrors.ErrInvalidSession)
		require.EqualValues(t, 1, atomic.LoadInt32(&checker.calls))
	})

	t.Run("forget leaves nothing cached", func(t *testing.T) {
		checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{})}
		r, err := identity.NewResolver(checker, 16)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := r.Resolve(context.Background(), "tok")
			done <- err
		}()
		<-checker.started

		r.Forget("tok")
		close(checker.release)
		require.NoError(t, <-done)
		require.Equal(t, identity.Unresolved, r.State("tok"))
	})
}

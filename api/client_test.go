package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/minis-web/api"
	apperrors "github.com/jrsteele09/minis-web/internal/errors"
	"github.com/jrsteele09/minis-web/internal/testutil/fakeapi"
	"github.com/stretchr/testify/require"
)

func TestClientAttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"name":"Anna Muster","roleId":3}`))
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	require.NoError(t, err)

	head, err := client.CheckToken(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", gotAuth)
	require.Equal(t, api.UserHead{ID: 7, Name: "Anna Muster", RoleID: api.RoleAdministrator}, head)
}

func TestClientWithoutTokenSendsNoHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	require.NoError(t, err)
	require.NoError(t, client.Get(context.Background(), "ping", "", nil))
	require.Empty(t, gotAuth)
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var hooked []string
	client, err := api.New(srv.URL, api.WithUnauthorizedHook(func(token string) {
		hooked = append(hooked, token)
	}))
	require.NoError(t, err)

	t.Run("authenticated call fires hook", func(t *testing.T) {
		err := client.Get(context.Background(), "user", "stale", nil)
		require.ErrorIs(t, err, api.ErrUnauthorized)
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		require.Equal(t, []string{"stale"}, hooked)
		require.Equal(t, http.StatusUnauthorized, api.StatusOf(err))
	})

	t.Run("anonymous call does not", func(t *testing.T) {
		hooked = nil
		err := client.Get(context.Background(), "user", "", nil)
		require.ErrorIs(t, err, api.ErrUnauthorized)
		require.Empty(t, hooked)
	})
}

func TestClientRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom\n"))
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL + "/base")
	require.NoError(t, err)

	err = client.Patch(context.Background(), "user/3", map[string]int{"active": 1}, "abc", nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, api.ErrUnauthorized))

	var reqErr *api.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.MethodPatch, reqErr.Method)
	require.Equal(t, "/base/user/3", reqErr.Path)
	require.Equal(t, http.StatusInternalServerError, reqErr.Status)
	require.Equal(t, "boom", reqErr.Body)
	require.Equal(t, http.StatusInternalServerError, api.StatusOf(err))
}

func TestClientConcurrentCallsAreIndependent(t *testing.T) {
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL)
	require.NoError(t, err)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- client.Get(context.Background(), "user", "abc", nil) }()
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	require.Greater(t, atomic.LoadInt32(&peak), int32(1))
}

func TestResourcesAgainstFakeAPI(t *testing.T) {
	fake := fakeapi.New()
	t.Cleanup(fake.Close)

	client, err := api.New(fake.URL())
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("login with bad credentials", func(t *testing.T) {
		_, err := client.Login(ctx, "anna", "falsch")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})

	token, err := client.Login(ctx, "anna", fakeapi.DefaultPassword)
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	tok := token.AccessToken

	t.Run("check token", func(t *testing.T) {
		head, err := client.CheckToken(ctx, tok)
		require.NoError(t, err)
		require.Equal(t, 1, head.ID)
		require.Equal(t, "Anna Muster", head.Name)
		require.True(t, head.RoleID.Privileged())
	})

	t.Run("users", func(t *testing.T) {
		users, err := client.Users(ctx, tok)
		require.NoError(t, err)
		require.Len(t, users, 6)

		u, err := client.User(ctx, tok, 2)
		require.NoError(t, err)
		require.Equal(t, "Max Mustermann", u.FullName())
	})

	t.Run("ban dates", func(t *testing.T) {
		require.NoError(t, client.UpdateBanDate(ctx, tok, 2, "2026-12-24", true))
		dates, err := client.BanDates(ctx, tok, 2)
		require.NoError(t, err)
		require.Equal(t, []string{"2026-12-24"}, dates)

		calls := fake.Calls(http.MethodPatch)
		require.NotEmpty(t, calls)
		last := calls[len(calls)-1]
		require.Equal(t, "/user/2/ban", last.Path)
		require.Equal(t, map[string]any{"date": "2026-12-24", "add": true}, last.Body)
	})

	t.Run("weekdays", func(t *testing.T) {
		require.NoError(t, client.UpdateWeekday(ctx, tok, 3, api.Sunday, true))
		days, err := client.Weekdays(ctx, tok, 3)
		require.NoError(t, err)
		require.Equal(t, []api.Weekday{api.Sunday}, days)
	})

	t.Run("assign and events", func(t *testing.T) {
		require.NoError(t, client.AssignUser(ctx, tok, 1, 4, true))
		require.NoError(t, client.AssignUser(ctx, tok, 1, 2, false))

		from := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		events, err := client.Events(ctx, tok, from, from.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.ElementsMatch(t, []int{3, 4}, events[0].AssignedUserIDs)
		require.Equal(t, "10:00", events[0].ShortTime())

		mine, err := client.EventsForUser(ctx, tok, 4)
		require.NoError(t, err)
		require.Len(t, mine, 1)
	})

	t.Run("create event", func(t *testing.T) {
		err := client.CreateEvent(ctx, tok, api.NewEvent{Name: "Taufe", DateBegin: "2026-11-03", TimeBegin: "14:00:00", LocationID: 2, MinimalUser: 2})
		require.NoError(t, err)
		ev, ok := fake.EventByName("Taufe")
		require.True(t, ok)
		require.Equal(t, "Kapelle", ev.Location)
	})

	t.Run("plan pdf", func(t *testing.T) {
		from := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		data, err := client.PlanPDF(ctx, tok, from, from.AddDate(0, 0, 6))
		require.NoError(t, err)
		require.Contains(t, string(data), "%PDF")
	})

	t.Run("revoked token", func(t *testing.T) {
		fake.Revoke(tok)
		_, err := client.Users(ctx, tok)
		require.ErrorIs(t, err, api.ErrUnauthorized)
	})
}

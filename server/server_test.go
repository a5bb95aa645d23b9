package server_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/minis-web/api"
	"github.com/jrsteele09/minis-web/identity"
	"github.com/jrsteele09/minis-web/internal/config"
	"github.com/jrsteele09/minis-web/internal/testutil/fakeapi"
	"github.com/jrsteele09/minis-web/server"
	"github.com/jrsteele09/minis-web/session"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t    *testing.T
	app  *httptest.Server
	fake *fakeapi.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("RECONCILE_POLICY", "keep")

	fake := fakeapi.New()
	t.Cleanup(fake.Close)

	cfg, err := config.New()
	require.NoError(t, err)

	client, err := api.New(fake.URL(), api.WithTimeout(5*time.Second))
	require.NoError(t, err)
	resolver, err := identity.NewResolver(client, 16)
	require.NoError(t, err)
	client.SetUnauthorizedHook(resolver.Invalidate)

	db, err := session.OpenDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv, err := server.New(cfg, server.Deps{
		API:       client,
		Resolver:  resolver,
		Durable:   session.NewDurableManager(db, 24*time.Hour, false),
		Ephemeral: session.NewEphemeralManager(time.Hour, false),
	})
	require.NoError(t, err)

	app := httptest.NewServer(srv)
	t.Cleanup(app.Close)
	return &harness{t: t, app: app, fake: fake}
}

// browser does not follow redirects so tests can assert on them.
type browser struct {
	h      *harness
	client *http.Client
}

func (h *harness) browser() *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &browser{h: h, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.h.t.Helper()
	resp, err := b.client.Do(req)
	require.NoError(b.h.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.h.t, err)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodGet, b.h.app.URL+path, nil)
	require.NoError(b.h.t, err)
	return b.do(req)
}

func (b *browser) post(path string, form url.Values, htmx bool) (*http.Response, string) {
	req, err := http.NewRequest(http.MethodPost, b.h.app.URL+path, strings.NewReader(form.Encode()))
	require.NoError(b.h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return b.do(req)
}

func (b *browser) login(username string, remember bool) *http.Response {
	b.h.t.Helper()
	form := url.Values{"username": {username}, "password": {fakeapi.DefaultPassword}}
	if remember {
		form.Set("remember", "on")
	}
	resp, _ := b.post(server.RouteAuthLogin, form, false)
	require.Equal(b.h.t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(b.h.t, server.RouteHome, resp.Header.Get("Location"))
	return resp
}

func cookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, body := h.browser().get(server.RouteHealth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body)
}

func TestStaticAssets(t *testing.T) {
	h := newHarness(t)
	resp, body := h.browser().get("/css/app.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/css")
	require.Contains(t, body, ".event-card")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, err := http.NewRequest(http.MethodGet, h.app.URL+"/css/app.css", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	resp, _ = h.browser().do(req)
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp, _ = h.browser().get("/css/missing.css")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	t.Run("anonymous visitors are sent to login", func(t *testing.T) {
		h := newHarness(t)
		resp, _ := h.browser().get("/")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))
	})

	t.Run("missing fields", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.browser().post(server.RouteAuthLogin, url.Values{"username": {"anna"}}, false)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Contains(t, body, "Bitte Benutzername und Passwort eingeben")
		require.Empty(t, h.fake.Calls(http.MethodPost))
	})

	t.Run("wrong password keeps the username", func(t *testing.T) {
		h := newHarness(t)
		resp, body := h.browser().post(server.RouteAuthLogin, url.Values{"username": {"anna"}, "password": {"falsch"}}, false)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, body, "Benutzername oder Passwort falsch")
		require.Contains(t, body, `value="anna"`)
	})

	t.Run("greets and shows the full menu to an administrator", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		resp, body := b.get("/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Hallo Anna Muster")
		require.Contains(t, body, `href="/stammdaten"`)
		require.Contains(t, body, `href="/einteilung"`)
		require.Contains(t, body, ">AM<")
		require.Contains(t, body, "Einstellungen")

		// flash is shown once
		_, body = b.get("/")
		require.NotContains(t, body, "Hallo Anna Muster")
	})

	t.Run("remember me uses a persistent cookie", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		resp := b.login("anna", true)

		durable := cookie(resp, session.DurableCookieName)
		require.NotNil(t, durable)
		require.False(t, durable.Expires.IsZero())

		// a restarted browser keeps only persistent cookies
		restarted := h.browser()
		u, err := url.Parse(h.app.URL)
		require.NoError(t, err)
		restarted.client.Jar.SetCookies(u, []*http.Cookie{{Name: durable.Name, Value: durable.Value, Path: "/"}})
		resp, _ = restarted.get("/")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("without remember me the token lives in a session cookie", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		resp := b.login("anna", false)

		require.Nil(t, cookie(resp, session.DurableCookieName))
		ephemeral := cookie(resp, session.EphemeralCookieName)
		require.NotNil(t, ephemeral)
		require.True(t, ephemeral.Expires.IsZero())
	})
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("anna", true)

	resp, _ := b.get(server.RouteAuthLogout)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))

	resp, _ = b.get("/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))
}

func TestMenuGating(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("max", false)

	_, body := b.get("/")
	require.NotContains(t, body, `href="/stammdaten"`)
	require.NotContains(t, body, `href="/einteilung"`)

	for _, path := range []string{server.RouteStammdaten, server.RouteEinteilung, server.RouteEinteilungPDF} {
		resp, _ := b.get(path)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		require.Equal(t, server.RouteHome, resp.Header.Get("Location"), path)
	}
	_, body = b.get("/")
	require.Contains(t, body, "Keine Berechtigung")

	resp, _ := b.post("/einteilung/events/1/assign", url.Values{"member": {"2"}}, true)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Empty(t, h.fake.Calls(http.MethodPatch))

	// own settings are open, others are not
	resp, _ = b.get("/users/2/settings")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = b.get("/users/3/settings")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestUnauthorizedAnswerEndsSession(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("anna", true)

	h.fake.FailNext(http.MethodGet, "/user", http.StatusUnauthorized)
	resp, _ := b.get(server.RouteStammdaten)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), server.RouteLogin+"?error="))

	resp, _ = b.get("/")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, server.RouteLogin, resp.Header.Get("Location"))
}

func TestUnreachableAPIShowsErrorPage(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("anna", false)

	h.fake.FailNext(http.MethodGet, "/user", http.StatusInternalServerError)
	resp, body := b.get(server.RouteStammdaten)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Contains(t, body, "nicht erreichbar")
}

func TestHome(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("max", false)

	_, body := b.get("/?view=calendar&month=2026-11")
	require.Contains(t, body, "November 2026")
	require.Contains(t, body, "10:00 Sonntagsmesse")

	_, body = b.get("/?view=table")
	require.Contains(t, body, "01.11.2026")
	require.Contains(t, body, "St. Martin")
	require.NotContains(t, body, "Vorabendmesse")
}

func TestStammdaten(t *testing.T) {
	h := newHarness(t)
	b := h.browser()
	b.login("paul", false)

	resp, body := b.get(server.RouteStammdaten)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body[strings.Index(body, "<tbody>"):]
	// sorted by last name
	require.Less(t, strings.Index(rows, "Berger"), strings.Index(rows, "Huber"))
	require.Less(t, strings.Index(rows, "Mustermann"), strings.Index(rows, "Öztürk"))
	require.Less(t, strings.Index(rows, "Öztürk"), strings.Index(rows, "Wagner"))
	require.Contains(t, rows, `class="inactive"`)
	require.Contains(t, rows, "Oberministrant")
}

func TestEinteilung(t *testing.T) {
	rng := url.Values{"from": {"2026-10-26"}, "to": {"2026-11-08"}}

	t.Run("lists events of the range", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		resp, body := b.get(server.RouteEinteilung + "?" + rng.Encode())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Sonntagsmesse")
		require.Contains(t, body, "Vorabendmesse")
		require.Contains(t, body, "es fehlen 2")
		require.Contains(t, body, `id="event-1"`)
	})

	t.Run("invalid new event sends nothing", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{"from": rng["from"], "to": rng["to"], "time": {"10:00"}}
		resp, body := b.post(server.RouteEinteilungEvents, form, false)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Contains(t, body, "Bitte Name eingeben")
		require.Contains(t, body, "Bitte Datum wählen")
		require.Contains(t, body, "Bitte Ort auswählen")
		require.Contains(t, body, "Bitte Anzahl eingeben")
		require.NotContains(t, body, "Bitte Uhrzeit wählen")
		require.Empty(t, h.fake.Calls(http.MethodPut))
	})

	t.Run("creates an event", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{
			"from": rng["from"], "to": rng["to"],
			"name": {"Taufe"}, "date": {"2026-11-03"}, "time": {"11:15"},
			"locationId": {"2"}, "minimalUser": {"2"},
		}
		resp, _ := b.post(server.RouteEinteilungEvents, form, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/einteilung?"+rng.Encode(), resp.Header.Get("Location"))

		ev, ok := h.fake.EventByName("Taufe")
		require.True(t, ok)
		require.Equal(t, "11:15:00", ev.TimeBegin)
		require.Equal(t, 2, ev.LocationID)

		_, body := b.get(resp.Header.Get("Location"))
		require.Contains(t, body, "Messe angelegt")
	})

	t.Run("assignment sends one request per change", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{
			"from": rng["from"], "to": rng["to"], "date": {"2026-11-01"},
			"current": {"2", "3"}, "member": {"2", "4"},
		}
		resp, body := b.post("/einteilung/events/1/assign", form, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `id="event-1"`)
		require.Contains(t, body, `value="4" checked`)
		require.NotContains(t, body, `value="3" checked`)
		require.Contains(t, body, "Einteilung gespeichert")

		calls := h.fake.Calls(http.MethodPatch)
		require.Len(t, calls, 2)
		paths := []string{calls[0].Path, calls[1].Path}
		require.ElementsMatch(t, []string{"/events/1/assign/add", "/events/1/assign/remove"}, paths)
		require.ElementsMatch(t, []int{2, 4}, h.fake.Assigned(1))
	})

	t.Run("unchanged assignment sends nothing", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{"date": {"2026-11-01"}, "current": {"2", "3"}, "member": {"3", "2"}}
		resp, _ := b.post("/einteilung/events/1/assign", form, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Empty(t, h.fake.Calls(http.MethodPatch))
	})

	t.Run("bad event date sends nothing", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{"date": {"kaputt"}, "current": {"2", "3"}, "member": {"2", "4"}}
		resp, _ := b.post("/einteilung/events/1/assign", form, true)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Empty(t, h.fake.Calls(http.MethodPatch))
		require.ElementsMatch(t, []int{2, 3}, h.fake.Assigned(1))
	})

	t.Run("auto assign", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		resp, _ := b.post("/einteilung/events/2/auto-assign", rng, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Len(t, h.fake.Assigned(2), 2)
	})

	t.Run("plan pdf", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		resp, body := b.get(server.RouteEinteilungPDF + "?from=2026-11-01&to=2026-11-08")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		require.Contains(t, resp.Header.Get("Content-Disposition"), "einteilung_2026-11-01_2026-11-08.pdf")
		require.True(t, strings.HasPrefix(body, "%PDF"))
	})
}

func TestSettings(t *testing.T) {
	t.Run("general data keeps flags for non privileged users", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		form := url.Values{"firstname": {"Maximilian"}, "lastname": {"Mustermann"}}
		resp, _ := b.post("/users/2/settings/general", form, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		u, ok := h.fake.UserRecord(2)
		require.True(t, ok)
		require.Equal(t, "Maximilian", u.Firstname)
		require.Equal(t, 1, u.Active)
		require.Equal(t, 1, u.Incense)
	})

	t.Run("administrator may deactivate", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("anna", false)

		form := url.Values{"firstname": {"Lena"}, "lastname": {"Berger"}, "incense": {"on"}}
		resp, _ := b.post("/users/3/settings/general", form, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		u, _ := h.fake.UserRecord(3)
		require.Equal(t, 0, u.Active)
		require.Equal(t, 1, u.Incense)
	})

	t.Run("general data needs both names", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		resp, body := b.post("/users/2/settings/general", url.Values{"lastname": {"Mustermann"}}, false)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Contains(t, body, "Bitte Vorname eingeben")
		require.Empty(t, h.fake.Calls(http.MethodPatch))
	})

	t.Run("password must be repeated", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		resp, body := b.post("/users/2/settings/password", url.Values{"password": {"neu"}, "passwordRepeat": {"anders"}}, false)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Contains(t, body, "Die Passwörter stimmen nicht überein")
		require.Empty(t, h.fake.Calls(http.MethodPatch))

		resp, _ = b.post("/users/2/settings/password", url.Values{"password": {"neu"}, "passwordRepeat": {"neu"}}, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.True(t, h.fake.PasswordMatches(2, "neu"))

		_, body = b.get(resp.Header.Get("Location"))
		require.Contains(t, body, "Passwort geändert")
	})

	t.Run("ban date toggle", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		resp, _ := b.post("/users/2/settings/ban", url.Values{"toggle": {"2026-11-01"}, "month": {"2026-11"}}, false)
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/users/2/settings?tab=ban&month=2026-11", resp.Header.Get("Location"))
		require.Equal(t, []string{"2026-11-01"}, h.fake.BanDates(2))

		resp, body := b.post("/users/2/settings/ban", url.Values{"toggle": {"2026-11-01"}, "current": {"2026-11-01"}, "month": {"2026-11"}}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `id="tab-ban"`)
		require.NotContains(t, body, "banned")
		require.Empty(t, h.fake.BanDates(2))
	})

	t.Run("weekdays", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		resp, body := b.post("/users/2/settings/weekdays", url.Values{"member": {string(api.Weekdays[0]), string(api.Weekdays[6])}}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, `id="tab-weekdays"`)
		require.Contains(t, body, "Änderung gespeichert")
		require.ElementsMatch(t, []api.Weekday{api.Weekdays[0], api.Weekdays[6]}, h.fake.PreferredWeekdays(2))

		resp, _ = b.post("/users/2/settings/weekdays", url.Values{"member": {"XYZ"}}, true)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("more than three partners are rejected without a request", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		resp, body := b.post("/users/2/settings/partners", url.Values{"member": {"1", "3", "4", "6"}}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Maximal 3 erlaubt")
		require.Empty(t, h.fake.Calls(http.MethodPatch))
		require.Empty(t, h.fake.Preferred(2))

		resp, body = b.post("/users/2/settings/partners", url.Values{"member": {"3", "4"}}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Hinzugefügt")
		require.Len(t, h.fake.Calls(http.MethodPatch), 2)
		require.ElementsMatch(t, []int{3, 4}, h.fake.Preferred(2))
	})

	t.Run("failed save keeps the selection and reports the status", func(t *testing.T) {
		h := newHarness(t)
		b := h.browser()
		b.login("max", false)

		h.fake.FailNext(http.MethodPatch, "/user/2/preferred", http.StatusInternalServerError)
		resp, body := b.post("/users/2/settings/partners", url.Values{"member": {"3"}}, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body, "Speichern fehlgeschlagen (Status 500)")
		require.Contains(t, body, `value="3" checked`)
	})
}

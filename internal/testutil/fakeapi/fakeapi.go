// Package fakeapi is an in-memory stand-in for the remote scheduling API,
// served through httptest. It issues HS256 access tokens on login, checks
// bcrypt password hashes, and records every call so tests can assert on the
// exact requests a client sent.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/minis-web/api"
	"golang.org/x/crypto/bcrypt"
)

const DefaultPassword = "geheim"

// Call is one recorded request.
type Call struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type userRecord struct {
	api.User
	passwordHash string
}

type failure struct {
	method string
	prefix string
	status int
}

type Server struct {
	*httptest.Server

	mu          sync.Mutex
	secret      []byte
	revoked     map[string]bool
	users       map[int]*userRecord
	bans        map[int]map[string]bool
	weekdays    map[int]map[api.Weekday]bool
	preferred   map[int][]int
	events      map[int]*api.Event
	locations   []api.Location
	nextEventID int
	calls       []Call
	failures    []failure
	delay       time.Duration
}

// New starts a fake API seeded with a small parish. Close it with
// t.Cleanup(s.Close).
func New() *Server {
	s := &Server{
		secret:    []byte(uuid.NewString()),
		revoked:   make(map[string]bool),
		users:     make(map[int]*userRecord),
		bans:      make(map[int]map[string]bool),
		weekdays:  make(map[int]map[api.Weekday]bool),
		preferred: make(map[int][]int),
		events:    make(map[int]*api.Event),
	}
	s.seed()
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) seed() {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		panic("fakeapi: hashing seed password: " + err.Error())
	}
	for _, u := range []api.User{
		{ID: 1, Firstname: "Anna", Lastname: "Muster", Username: "anna", RoleID: api.RoleAdministrator, Active: 1},
		{ID: 2, Firstname: "Max", Lastname: "Mustermann", Username: "max", RoleID: api.RoleMinistrant, Active: 1, Incense: 1},
		{ID: 3, Firstname: "Lena", Lastname: "Berger", Username: "lena", RoleID: api.RoleMinistrant, Active: 1},
		{ID: 4, Firstname: "Paul", Lastname: "Huber", Username: "paul", RoleID: api.RoleOberministrant, Active: 1},
		{ID: 5, Firstname: "Sophie", Lastname: "Wagner", Username: "sophie", RoleID: api.RoleMinistrant, Active: 0},
		{ID: 6, Firstname: "Jonas", Lastname: "Öztürk", Username: "jonas", RoleID: api.RoleMinistrant, Active: 1},
	} {
		s.users[u.ID] = &userRecord{User: u, passwordHash: string(hash)}
	}
	s.locations = []api.Location{{ID: 1, Name: "St. Martin"}, {ID: 2, Name: "Kapelle"}}
	s.events[1] = &api.Event{ID: 1, Name: "Sonntagsmesse", DateBegin: "2026-11-01", TimeBegin: "10:00:00", LocationID: 1, Location: "St. Martin", MinimalUser: 4, AssignedUserIDs: []int{2, 3}}
	s.events[2] = &api.Event{ID: 2, Name: "Vorabendmesse", DateBegin: "2026-11-07", TimeBegin: "18:30:00", LocationID: 2, Location: "Kapelle", MinimalUser: 2, AssignedUserIDs: []int{}}
	s.nextEventID = 3
}

// IssueToken signs an access token for the user, valid for ttl.
func (s *Server) IssueToken(userID int, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, ttl)
}

func (s *Server) issueLocked(userID int, ttl time.Duration) string {
	u := s.users[userID]
	role := api.RoleUnspecified
	username := ""
	if u != nil {
		role = u.RoleID
		username = u.Username
	}
	claims := jwtlib.MapClaims{
		"userId": userID,
		"roleId": int(role),
		"user":   username,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(ttl).Unix(),
		"jti":    uuid.NewString(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic("fakeapi: signing token: " + err.Error())
	}
	return signed
}

// Revoke makes every later call with token answer 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// FailNext makes the next call matching method and path prefix answer with
// status. Failures are consumed in order.
func (s *Server) FailNext(method, pathPrefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, prefix: pathPrefix, status: status})
}

// SetDelay slows every response down, to observe optimistic updates.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns the recorded calls, optionally filtered by method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// URL returns the base URL with a trailing slash, the way the client expects it.
func (s *Server) URL() string {
	return s.Server.URL + "/"
}

func (s *Server) BanDates(userID int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.bans[userID])
}

func (s *Server) PreferredWeekdays(userID int) []api.Weekday {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []api.Weekday
	for _, d := range api.Weekdays {
		if s.weekdays[userID][d] {
			out = append(out, d)
		}
	}
	return out
}

func (s *Server) Preferred(userID int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.preferred[userID]...)
}

func (s *Server) Assigned(eventID int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.events[eventID]; ok {
		return append([]int(nil), ev.AssignedUserIDs...)
	}
	return nil
}

func (s *Server) UserRecord(userID int) (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return api.User{}, false
	}
	return u.User, true
}

func (s *Server) PasswordMatches(userID int, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(password)) == nil
}

func (s *Server) EventByName(name string) (api.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Name == name {
			return *ev, true
		}
	}
	return api.Event{}, false
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("GET /checkToken", s.auth(s.checkToken))
	mux.HandleFunc("GET /user", s.auth(s.listUsers))
	mux.HandleFunc("GET /user/{id}", s.auth(s.getUser))
	mux.HandleFunc("PATCH /user/{id}", s.auth(s.updateUser))
	mux.HandleFunc("PATCH /user/{id}/password", s.auth(s.updatePassword))
	mux.HandleFunc("GET /user/{id}/ban", s.auth(s.getBans))
	mux.HandleFunc("PATCH /user/{id}/ban", s.auth(s.patchBan))
	mux.HandleFunc("GET /user/{id}/weekday", s.auth(s.getWeekdays))
	mux.HandleFunc("PATCH /user/{id}/weekday", s.auth(s.patchWeekday))
	mux.HandleFunc("GET /user/{id}/preferred", s.auth(s.getPreferred))
	mux.HandleFunc("PATCH /user/{id}/preferred", s.auth(s.patchPreferred))
	mux.HandleFunc("GET /events", s.auth(s.listEvents))
	mux.HandleFunc("GET /events/{userId}", s.auth(s.eventsForUser))
	mux.HandleFunc("PUT /event", s.auth(s.createEvent))
	mux.HandleFunc("PATCH /events/{id}/assign/{op}", s.auth(s.assign))
	mux.HandleFunc("GET /autoAssign", s.auth(s.autoAssign))
	mux.HandleFunc("GET /location", s.auth(s.listLocations))
	mux.HandleFunc("GET /pdf", s.auth(s.planPDF))
	return s.record(mux)
}

// record captures the call, applies injected failures and the delay.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			_ = r.Body.Close()
			if len(data) > 0 {
				_ = json.Unmarshal(data, &body)
			}
			r.Body = io.NopCloser(strings.NewReader(string(data)))
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		status := 0
		for i, f := range s.failures {
			if f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix) {
				status = f.status
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				break
			}
		}
		delay := s.delay
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func (s *Server) auth(next func(http.ResponseWriter, *http.Request, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"reason": "no token provided"})
			return
		}

		s.mu.Lock()
		revoked := s.revoked[raw]
		secret := s.secret
		s.mu.Unlock()

		claims := jwtlib.MapClaims{}
		tkn, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
			return secret, nil
		}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
		if err != nil || !tkn.Valid || revoked {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}
		userID, _ := claims["userId"].(float64)
		next(w, r, int(userID))
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"reason": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if !strings.EqualFold(u.Username, creds.Username) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(creds.Password)) != nil {
			break
		}
		writeJSON(w, http.StatusOK, api.AccessToken{AccessToken: s.issueLocked(u.ID, time.Hour)})
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

func (s *Server) checkToken(w http.ResponseWriter, _ *http.Request, userID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown user"})
		return
	}
	writeJSON(w, http.StatusOK, api.UserHead{ID: u.ID, Name: u.FullName(), RoleID: u.RoleID})
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u.User)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, u.User)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var upd api.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	u.Firstname, u.Lastname, u.Active, u.Incense = upd.Firstname, upd.Lastname, upd.Active, upd.Incense
	w.WriteHeader(http.StatusOK)
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var upd api.PasswordUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil || upd.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(upd.Password), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, found := s.users[id]; found {
		u.passwordHash = string(hash)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getBans(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, sortedKeys(s.bans[id]))
}

func (s *Server) patchBan(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var upd struct {
		Date string `json:"date"`
		Add  bool   `json:"add"`
	}
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if _, err := time.Parse(api.DateLayout, upd.Date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bans[id] == nil {
		s.bans[id] = make(map[string]bool)
	}
	if upd.Add {
		s.bans[id][upd.Date] = true
	} else {
		delete(s.bans[id], upd.Date)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getWeekdays(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.Weekday{}
	for _, d := range api.Weekdays {
		if s.weekdays[id][d] {
			out = append(out, d)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) patchWeekday(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var upd struct {
		Weekday api.Weekday `json:"weekday"`
		Add     bool        `json:"add"`
	}
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil || !upd.Weekday.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid weekday"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.weekdays[id] == nil {
		s.weekdays[id] = make(map[api.Weekday]bool)
	}
	if upd.Add {
		s.weekdays[id][upd.Weekday] = true
	} else {
		delete(s.weekdays[id], upd.Weekday)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getPreferred(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]int{}, s.preferred[id]...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) patchPreferred(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var upd struct {
		OtherUserID int  `json:"otherUserId"`
		Add         bool `json:"add"`
	}
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred[id] = toggleInt(s.preferred[id], upd.OtherUserID, upd.Add)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request, _ int) {
	from, errFrom := time.Parse(api.DateLayout, r.URL.Query().Get("from"))
	to, errTo := time.Parse(api.DateLayout, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from and to are required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.Event{}
	for _, ev := range s.events {
		d := ev.Date()
		if d.Before(from) || d.After(to) {
			continue
		}
		cp := *ev
		cp.AssignedUserIDs = append([]int{}, ev.AssignedUserIDs...)
		out = append(out, cp)
	}
	sortEvents(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) eventsForUser(w http.ResponseWriter, r *http.Request, _ int) {
	userID, ok := pathInt(w, r, "userId")
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.Event{}
	for _, ev := range s.events {
		for _, id := range ev.AssignedUserIDs {
			if id == userID {
				cp := *ev
				cp.AssignedUserIDs = nil
				out = append(out, cp)
				break
			}
		}
	}
	sortEvents(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request, _ int) {
	var ev api.NewEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := ""
	for _, l := range s.locations {
		if l.ID == ev.LocationID {
			location = l.Name
		}
	}
	id := s.nextEventID
	s.nextEventID++
	s.events[id] = &api.Event{
		ID: id, Name: ev.Name, DateBegin: ev.DateBegin, TimeBegin: ev.TimeBegin,
		LocationID: ev.LocationID, Location: location, MinimalUser: ev.MinimalUser,
		AssignedUserIDs: []int{},
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request, _ int) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	op := r.PathValue("op")
	if op != "add" && op != "remove" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown operation"})
		return
	}
	var body struct {
		UserID int `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, found := s.events[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	ev.AssignedUserIDs = toggleInt(ev.AssignedUserIDs, body.UserID, op == "add")
	w.WriteHeader(http.StatusOK)
}

// autoAssign fills the event with active users in id order. The real
// server ranks candidates; tests only need the side effect.
func (s *Server) autoAssign(w http.ResponseWriter, r *http.Request, _ int) {
	id, err := strconv.Atoi(r.URL.Query().Get("eventId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "eventId required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, found := s.events[id]
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	ids := make([]int, 0, len(s.users))
	for uid := range s.users {
		ids = append(ids, uid)
	}
	sort.Ints(ids)
	for _, uid := range ids {
		if len(ev.AssignedUserIDs) >= ev.MinimalUser {
			break
		}
		if s.users[uid].IsActive() && !s.bans[uid][ev.DateBegin] {
			ev.AssignedUserIDs = toggleInt(ev.AssignedUserIDs, uid, true)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listLocations(w http.ResponseWriter, _ *http.Request, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.locations)
}

func (s *Server) planPDF(w http.ResponseWriter, r *http.Request, _ int) {
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%%PDF-1.4\n%% plan %s..%s\n", r.URL.Query().Get("from"), r.URL.Query().Get("to"))
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toggleInt(list []int, v int, add bool) []int {
	out := make([]int, 0, len(list)+1)
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	if add {
		out = append(out, v)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortEvents(events []api.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].DateBegin != events[j].DateBegin {
			return events[i].DateBegin < events[j].DateBegin
		}
		return events[i].TimeBegin < events[j].TimeBegin
	})
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/roster"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "rollcall-test"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	router  *gin.Engine
	clock   *testClock
	history *attendance.MemoryRepository
	healthy bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zerolog.Nop()

	e := &env{
		clock:   &testClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		history: attendance.NewMemoryRepository(),
		healthy: true,
	}
	rosterSvc := roster.NewService(roster.NewMemoryRepository(), log)
	attSvc := attendance.NewService(rosterSvc, e.history, attendance.Options{Logger: log, Now: e.clock.Now})
	authSvc := auth.NewService(auth.NewMemoryStore(), auth.Config{
		Issuer:     testIssuer,
		SigningKey: testKey,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}, nil, log)

	h := New(rosterSvc, attSvc, authSvc, log, map[string]Check{
		"db": func(context.Context) bool { return e.healthy },
	})
	e.router = gin.New()
	h.Register(e.router, auth.Bearer(testKey, testIssuer))
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type authResponse struct {
	User   auth.User      `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (e *env) signUp(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/auth/signup", "", gin.H{"email": email, "password": "secret1", "full_name": "Staff"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[authResponse](t, w).Tokens.AccessToken
}

func (e *env) createStudent(t *testing.T, token, name, group string, days ...string) roster.Student {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/students", token, roster.Input{
		FullName: name, PhoneNumber: "901234567", Group: group, WeekDays: days,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[roster.Student](t, w)
}

func TestRoutesRequireBearer(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/v1/students", "/v1/history", "/v1/locks", "/v1/auth/session"} {
		w := e.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	e.healthy = false
	w = e.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","db":false}`, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/v1/auth/signup", "", gin.H{"email": "a@b.uz", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[authResponse](t, w)
	assert.NotContains(t, w.Body.String(), "password")

	w = e.do(t, http.MethodPost, "/v1/auth/signup", "", gin.H{"email": "a@b.uz", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/signin", "", gin.H{"email": "a@b.uz", "password": "nope123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/signin", "", gin.H{"email": "a@b.uz", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/v1/auth/session", first.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@b.uz", decode[authResponse](t, w).User.Email)

	w = e.do(t, http.MethodPatch, "/v1/auth/user", first.Tokens.AccessToken, gin.H{"full_name": "Nodira"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Nodira", decode[authResponse](t, w).User.FullName)

	w = e.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": first.Tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := decode[authResponse](t, w)

	w = e.do(t, http.MethodPost, "/v1/auth/signout", "", gin.H{"refresh_token": refreshed.Tokens.RefreshToken})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": refreshed.Tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/v1/auth/avatar", first.Tokens.AccessToken, gin.H{"data": "aGVsbG8="})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudents(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	other := e.signUp(t, "c@d.uz")

	w := e.do(t, http.MethodPost, "/v1/students", token, roster.Input{FullName: "ali", Group: "A", WeekDays: []string{"Mon"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "phone_number", decode[map[string]string](t, w)["field"])

	ali := e.createStudent(t, token, "ali valiyev", "a", "Mon", "Wed")
	assert.Equal(t, "Ali Valiyev", ali.FullName)
	e.createStudent(t, token, "bek", "B", "Tue")

	w = e.do(t, http.MethodGet, "/v1/students?search=VALI", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]roster.Student](t, w)["students"], 1)

	w = e.do(t, http.MethodGet, "/v1/students", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"students":[]}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/students/"+ali.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPut, "/v1/students/"+ali.ID, token, roster.Input{
		FullName: "Ali Valiyev", PhoneNumber: "998901112233", Group: "A", WeekDays: []string{"Fri"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []roster.Weekday{roster.Friday}, decode[roster.Student](t, w).WeekDays)

	w = e.do(t, http.MethodGet, "/v1/groups", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"groups":["A","B"]}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/groups/A/weekdays", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"weekdays":["Friday"]}`, w.Body.String())

	w = e.do(t, http.MethodDelete, "/v1/students/"+ali.ID, token, nil)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	w = e.do(t, http.MethodDelete, "/v1/students/"+ali.ID+"?confirm=true", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodDelete, "/v1/students/"+ali.ID+"?confirm=true", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentsExport(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	e.createStudent(t, token, "ali", "A", "Mon")

	w := e.do(t, http.MethodGet, "/v1/students/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("Students")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ali", rows[1][1])
}

func TestSessionSaveAndGuard(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	ali := e.createStudent(t, token, "Ali", "A", "Mon")
	e.createStudent(t, token, "Bek", "A", "Tue")

	w := e.do(t, http.MethodGet, "/v1/eligible?group=A&weekday=Mon", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	eligible := decode[map[string][]roster.Student](t, w)["students"]
	require.Len(t, eligible, 1)
	assert.Equal(t, "Ali", eligible[0].FullName)

	w = e.do(t, http.MethodGet, "/v1/eligible?group=A", token, nil)
	assert.JSONEq(t, `{"students":[]}`, w.Body.String())

	w = e.do(t, http.MethodPost, "/v1/sessions", token, gin.H{"group": "A", "weekday": "Monday"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[draftView](t, w)
	require.Len(t, d.Rows, 1)
	assert.Equal(t, attendance.Counts{Unset: 1}, d.Counts)

	w = e.do(t, http.MethodPut, "/v1/sessions/"+d.ID+"/rows/"+ali.ID, token, gin.H{"status": "late", "late_minutes": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, attendance.Counts{Late: 1}, decode[draftView](t, w).Counts)

	w = e.do(t, http.MethodPut, "/v1/sessions/"+d.ID+"/rows/"+ali.ID, token, gin.H{"status": "sick"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/sessions/"+d.ID+"/save", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode[attendance.Snapshot](t, w)
	assert.Equal(t, "2024-01-01", snap.Date)
	require.NotNil(t, snap.Students[0].LateMinutes)
	assert.Equal(t, 10, *snap.Students[0].LateMinutes)

	w = e.do(t, http.MethodGet, "/v1/sessions/"+d.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	e.clock.Advance(19 * time.Hour)
	w = e.do(t, http.MethodPost, "/v1/history", token, attendance.SaveInput{
		Group: "A", Weekday: "Mon", Date: "2024-01-01",
		Students: []attendance.Row{{StudentID: ali.ID, FullName: "Ali", Status: attendance.StatusPresent}},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		Remaining attendance.Remaining `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflict))
	assert.Equal(t, attendance.Remaining{Hours: 1, Minutes: 0}, conflict.Remaining)

	w = e.do(t, http.MethodGet, "/v1/locks", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var locks struct {
		Locks    []attendance.Lock `json:"locks"`
		Cooldown string            `json:"cooldown"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &locks))
	require.Len(t, locks.Locks, 1)
	assert.Equal(t, "20h0m0s", locks.Cooldown)

	w = e.do(t, http.MethodGet, "/v1/locks/check?group=A&date=2024-01-01", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[attendance.LockState](t, w).Locked)

	e.clock.Advance(time.Hour + time.Minute)
	w = e.do(t, http.MethodPost, "/v1/history", token, attendance.SaveInput{
		Group: "A", Weekday: "Mon", Date: "2024-01-01",
		Students: []attendance.Row{{StudentID: ali.ID, FullName: "Ali", Status: attendance.StatusPresent}},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSaveEmptySession(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	w := e.do(t, http.MethodPost, "/v1/history", token, attendance.SaveInput{Group: "A", Weekday: "Mon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEditDeleteClear(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	save := func(date string) attendance.Snapshot {
		w := e.do(t, http.MethodPost, "/v1/history", token, attendance.SaveInput{
			Group: "A", Weekday: "Mon", Date: date,
			Students: []attendance.Row{
				{StudentID: "s1", FullName: "Ali", Status: attendance.StatusPresent},
				{StudentID: "s2", FullName: "Bek", Status: attendance.StatusAbsent},
			},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode[attendance.Snapshot](t, w)
	}
	first := save("2023-12-01")
	save("2024-01-01")
	last := save("2024-02-01")

	w := e.do(t, http.MethodGet, "/v1/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	snaps := decode[map[string][]attendance.Snapshot](t, w)["snapshots"]
	require.Len(t, snaps, 3)
	assert.Equal(t, last.ID, snaps[0].ID)

	w = e.do(t, http.MethodPut, "/v1/history/"+first.ID+"/students/s2", token, gin.H{"status": "present"})
	require.Equal(t, http.StatusOK, w.Code)
	edited := decode[attendance.Snapshot](t, w)
	assert.Equal(t, attendance.StatusPresent, edited.Students[1].Status)
	assert.Equal(t, attendance.StatusPresent, edited.Students[0].Status)

	w = e.do(t, http.MethodPut, "/v1/history/"+first.ID+"/students/nobody", token, gin.H{"status": "present"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/v1/history/missing?confirm=true", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodDelete, "/v1/history/"+last.ID, token, nil)
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)

	w = e.do(t, http.MethodPost, "/v1/history/clear", token, gin.H{"before": "2024-01-01"})
	assert.Equal(t, http.StatusPreconditionRequired, w.Code)
	w = e.do(t, http.MethodPost, "/v1/history/clear", token, gin.H{"before": "2024-01-01", "confirm": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":2,"failed":0}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/v1/history/"+last.ID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodDelete, "/v1/history/"+last.ID+"?confirm=true", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/v1/history", token, nil)
	assert.JSONEq(t, `{"snapshots":[]}`, w.Body.String())
}

func TestInternalErrorsAreHidden(t *testing.T) {
	e := newEnv(t)
	token := e.signUp(t, "a@b.uz")
	w := e.do(t, http.MethodPost, "/v1/history", token, attendance.SaveInput{
		Group: "A", Weekday: "Mon", Date: "2023-01-01",
		Students: []attendance.Row{{StudentID: "s1", FullName: "Ali", Status: attendance.StatusPresent}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	snap := decode[attendance.Snapshot](t, w)

	e.history.FailDelete = func(string) error { return assert.AnError }
	w = e.do(t, http.MethodDelete, "/v1/history/"+snap.ID+"?confirm=true", token, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

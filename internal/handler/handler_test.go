package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/cleanwarts/internal/account"
	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/backup"
	"github.com/dukerupert/cleanwarts/internal/blob"
	"github.com/dukerupert/cleanwarts/internal/chat"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/dashboard"
	"github.com/dukerupert/cleanwarts/internal/database"
	"github.com/dukerupert/cleanwarts/internal/leaderboard"
	"github.com/dukerupert/cleanwarts/internal/middleware"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/review"
	"github.com/dukerupert/cleanwarts/internal/store"
)

const adminEmail = "admin@gmail.com"

type env struct {
	users       *store.UserStore
	houses      *store.HouseStore
	tasks       *store.TaskStore
	completions *store.CompletionStore
	sessions    *store.SessionStore

	authH        *AuthHandler
	completionH  *CompletionHandler
	leaderboardH *LeaderboardHandler
	dashboardH   *DashboardHandler
	chatH        *ChatHandler
	taskH        *TaskHandler

	cleanup    *cleanup.Service
	aggregator *dashboard.Aggregator
	broker     *realtime.Broker
	live       *realtime.Tracker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.Default()
	e := &env{
		users:       store.NewUserStore(db),
		houses:      store.NewHouseStore(db),
		tasks:       store.NewTaskStore(db),
		completions: store.NewCompletionStore(db),
		sessions:    store.NewSessionStore(db),
		broker:      realtime.NewBroker(logger),
		live:        realtime.NewTracker(),
	}

	projector := leaderboard.NewProjector(e.houses, e.users, e.broker, adminEmail, logger)
	e.aggregator = dashboard.NewAggregator(e.users, e.houses, e.completions, projector, e.broker, adminEmail, logger)
	e.cleanup = cleanup.NewService(e.tasks, e.completions, e.users, blob.NewLocalStore(t.TempDir(), "/uploads"), e.broker, logger)
	accounts := account.NewService(e.users, e.houses, e.broker, adminEmail, logger)
	prop := review.NewPropagator(e.completions, e.tasks, e.users, e.houses, e.aggregator, nil, e.broker, logger)

	e.authH = NewAuthHandler(accounts, e.sessions, e.users, e.live, time.Hour, "http://localhost", logger)
	e.completionH = NewCompletionHandler(e.cleanup, prop, e.completions, 1<<20, logger)
	e.leaderboardH = NewLeaderboardHandler(projector, logger)
	e.dashboardH = NewDashboardHandler(e.aggregator, e.users, logger)
	e.chatH = NewChatHandler(chat.NewService(store.NewChatStore(db), e.broker, logger), e.users, logger)
	e.taskH = NewTaskHandler(e.cleanup, logger)
	return e
}

func (e *env) user(t *testing.T, id, email, house string) *model.User {
	t.Helper()
	u, err := e.users.Create(&model.User{ID: id, Name: "N" + id, Email: email, House: house, PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func asUser(r *http.Request, u *model.User, admin bool) *http.Request {
	return r.WithContext(auth.WithAuth(r.Context(), auth.AuthContext{
		UserID: u.ID, Name: u.Name, House: u.House, Admin: admin,
	}))
}

func jsonRequest(method, target string, body any) *http.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{cleanup.ErrInvalid, http.StatusBadRequest},
		{review.ErrPointsOutOfRange, http.StatusBadRequest},
		{chat.ErrTooLong, http.StatusBadRequest},
		{cleanup.ErrUnauthenticated, http.StatusUnauthorized},
		{account.ErrInvalidCredentials, http.StatusUnauthorized},
		{review.ErrCompletionNotFound, http.StatusNotFound},
		{account.ErrEmailTaken, http.StatusConflict},
		{backup.ErrInProgress, http.StatusConflict},
		{backup.ErrDisabled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	e := newEnv(t)

	rec := httptest.NewRecorder()
	e.authH.Register(rec, jsonRequest("POST", "/api/register", map[string]string{
		"name": "Ginny", "email": "ginny@example.com", "mobile": "5551234567",
		"password": "bat-bogey", "house": "gryffindor",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, middleware.SessionCookieName, rec.Result().Cookies()[0].Name)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = httptest.NewRecorder()
	e.authH.Login(rec, jsonRequest("POST", "/api/login", map[string]string{
		"email": "ginny@example.com", "password": "wrong",
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.authH.Login(rec, jsonRequest("POST", "/api/login", map[string]string{
		"email": "ginny@example.com", "password": "bat-bogey",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	token := rec.Result().Cookies()[0].Value

	sess, err := e.sessions.GetByToken(token)
	require.NoError(t, err)
	require.NotNil(t, sess)

	liveSess := realtime.NewSession(nil, slog.Default())
	disposed := false
	liveSess.Registry().Register(func() { disposed = true })
	liveSess.Registry().Register(e.live.Track(token, liveSess))

	req := httptest.NewRequest("POST", "/api/logout", nil)
	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: sess.UserID, SessionToken: token}))
	rec = httptest.NewRecorder()
	e.authH.Logout(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	sess, err = e.sessions.GetByToken(token)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.True(t, disposed, "live session watchers should be released on logout")
	assert.Equal(t, 0, e.live.Len())
}

func TestRegisterRejectsInvalid(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.authH.Register(rec, jsonRequest("POST", "/api/register", map[string]string{
		"name": "Ginny", "email": "ginny@example.com", "mobile": "5551234567",
		"password": "bat-bogey", "house": "durmstrang",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func multipartSubmission(t *testing.T, fields map[string]string, withImages bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withImages {
		for _, name := range []string{"before", "after"} {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="`+name+`"; filename="`+name+`.jpg"`)
			h.Set("Content-Type", "image/jpeg")
			part, err := mw.CreatePart(h)
			require.NoError(t, err)
			part.Write([]byte("\xff\xd8\xff fake jpeg " + name))
		}
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/completions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestSubmitByLocationUsesSyntheticTask(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "hufflepuff")

	req := multipartSubmission(t, map[string]string{
		"lat": "51.5", "lng": "-0.12", "title": "Bins", "description": "Picked up litter",
	}, true)
	rec := httptest.NewRecorder()
	e.completionH.Submit(rec, asUser(req, u, false))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	c := decode[model.TaskCompletion](t, rec)
	assert.True(t, model.IsSyntheticTaskID(c.TaskID))
	assert.Equal(t, model.CompletionPending, c.Status)
	assert.True(t, strings.HasPrefix(c.BeforeImageURL, "/uploads/tasks/"+c.TaskID+"/before_"))
	assert.Equal(t, "hufflepuff", c.UserHouse)
}

func TestSubmitByLocationMatchesNearbyTask(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "hufflepuff")
	task, err := e.cleanup.RequestCleaning(context.Background(), cleanup.RequestInput{
		Title: "Lake shore", Description: "Bottles", RequesterID: "u1",
		Location: &model.Location{Latitude: 51.5, Longitude: -0.12},
	})
	require.NoError(t, err)

	req := multipartSubmission(t, map[string]string{
		"lat": "51.5001", "lng": "-0.1201", "title": "Lake", "description": "Cleaned",
	}, true)
	rec := httptest.NewRecorder()
	e.completionH.Submit(rec, asUser(req, u, false))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, task.ID, decode[model.TaskCompletion](t, rec).TaskID)
}

func TestSubmitRequiresAuthAndImages(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "hufflepuff")

	rec := httptest.NewRecorder()
	e.completionH.Submit(rec, multipartSubmission(t, map[string]string{"lat": "1", "lng": "1"}, true))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := multipartSubmission(t, map[string]string{"lat": "1", "lng": "1", "title": "x", "description": "y"}, false)
	e.completionH.Submit(rec, asUser(req, u, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = multipartSubmission(t, map[string]string{"title": "x", "description": "y"}, true)
	e.completionH.Submit(rec, asUser(req, u, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list, err := e.completions.ListByUser("u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func seedCompletion(t *testing.T, e *env, u *model.User) string {
	t.Helper()
	c, err := e.completions.Create(&model.TaskCompletion{
		ID: "c1", TaskID: "temp_1", UserID: u.ID, UserName: u.Name, UserHouse: u.House, Title: "Hall",
	})
	require.NoError(t, err)
	return c.ID
}

func newApproveRequest(id string, points int) *http.Request {
	req := jsonRequest("POST", "/api/admin/completions/"+id+"/approve", map[string]int{"points": points})
	req.SetPathValue("id", id)
	return req
}

func TestApproveAndConflict(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "ravenclaw")
	admin := e.user(t, "root", adminEmail, "gryffindor")
	id := seedCompletion(t, e, u)

	rec := httptest.NewRecorder()
	e.completionH.Approve(rec, asUser(newApproveRequest(id, 15), admin, true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[review.Outcome](t, rec)
	assert.Equal(t, 15, out.Points)

	stored, err := e.users.GetByID("u1")
	require.NoError(t, err)
	assert.Equal(t, 15, stored.Points)

	rec = httptest.NewRecorder()
	e.completionH.Approve(rec, asUser(newApproveRequest(id, 15), admin, true))
	assert.Equal(t, http.StatusConflict, rec.Code)

	stored, err = e.users.GetByID("u1")
	require.NoError(t, err)
	assert.Equal(t, 15, stored.Points)
}

func TestConcurrentApprovalsAwardOnce(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "ravenclaw")
	admin := e.user(t, "root", adminEmail, "gryffindor")
	id := seedCompletion(t, e, u)

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			e.completionH.Approve(rec, asUser(newApproveRequest(id, 25), admin, true))
			codes[i] = rec.Code
		}()
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusConflict, code)
		}
	}
	assert.Equal(t, 1, ok, "codes=%v", codes)

	stored, err := e.users.GetByID("u1")
	require.NoError(t, err)
	assert.Equal(t, 25, stored.Points)
	assert.Equal(t, 1, stored.Tasks)
}

func TestApproveValidation(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "ravenclaw")
	admin := e.user(t, "root", adminEmail, "gryffindor")
	id := seedCompletion(t, e, u)

	rec := httptest.NewRecorder()
	e.completionH.Approve(rec, asUser(newApproveRequest(id, 101), admin, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.completionH.Approve(rec, asUser(newApproveRequest("missing", 10), admin, true))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReject(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "ravenclaw")
	admin := e.user(t, "root", adminEmail, "gryffindor")
	id := seedCompletion(t, e, u)

	req := httptest.NewRequest("POST", "/api/admin/completions/"+id+"/reject", nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	e.completionH.Reject(rec, asUser(req, admin, true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	c, err := e.completions.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, model.CompletionRejected, c.Status)
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "slytherin")

	rec := httptest.NewRecorder()
	e.dashboardH.Get(rec, asUser(httptest.NewRequest("GET", "/api/dashboard", nil), u, false))
	require.Equal(t, http.StatusOK, rec.Code)

	s := decode[dashboard.Summary](t, rec)
	assert.Equal(t, "slytherin", s.HouseID)
	assert.Equal(t, "Slytherin", s.HouseName)
	assert.Equal(t, 1, s.HouseRank)
}

func TestLeaderboardIndividualsDefaultsToOwnHouse(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "ravenclaw")
	e.user(t, "u2", "u2@example.com", "slytherin")

	rec := httptest.NewRecorder()
	e.leaderboardH.Individuals(rec, asUser(httptest.NewRequest("GET", "/api/leaderboard/individuals", nil), u, false))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		House   string                       `json:"house"`
		Members []leaderboard.MemberStanding `json:"members"`
	}](t, rec)
	assert.Equal(t, "ravenclaw", body.House)
	require.Len(t, body.Members, 1)
	assert.Equal(t, "u1", body.Members[0].ID)

	rec = httptest.NewRecorder()
	e.leaderboardH.Individuals(rec, asUser(httptest.NewRequest("GET", "/api/leaderboard/individuals?house=azkaban", nil), u, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatPostAndList(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "gryffindor")

	rec := httptest.NewRecorder()
	e.chatH.Post(rec, asUser(jsonRequest("POST", "/api/chat", map[string]string{"text": ""}), u, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	e.chatH.Post(rec, asUser(jsonRequest("POST", "/api/chat", map[string]string{"text": "Lumos"}), u, false))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	e.chatH.List(rec, asUser(httptest.NewRequest("GET", "/api/chat", nil), u, false))
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]model.ChatMessage](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Lumos", msgs[0].Text)
}

func TestTaskCreateAndNearby(t *testing.T) {
	e := newEnv(t)
	u := e.user(t, "u1", "u1@example.com", "gryffindor")

	rec := httptest.NewRecorder()
	e.taskH.Create(rec, asUser(jsonRequest("POST", "/api/tasks", map[string]any{
		"title": "Greenhouse", "description": "Spilled soil",
		"location": map[string]float64{"latitude": 10, "longitude": 20},
	}), u, false))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	e.taskH.Nearby(rec, asUser(httptest.NewRequest("GET", "/api/tasks/nearby?lat=10.0001&lng=20", nil), u, false))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]cleanup.Nearby](t, rec), 1)

	rec = httptest.NewRecorder()
	e.taskH.Nearby(rec, asUser(httptest.NewRequest("GET", "/api/tasks/nearby?lat=abc", nil), u, false))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeBackups struct {
	runErr error
}

func (f *fakeBackups) Status() backup.Status { return backup.Status{State: backup.StateIdle} }

func (f *fakeBackups) List(ctx context.Context, limit int) ([]model.Backup, error) { return nil, nil }

func (f *fakeBackups) Run(ctx context.Context) (*model.Backup, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &model.Backup{ID: 7, Key: "backups/b.db.enc", Status: model.BackupStatusCompleted}, nil
}

func TestBackupHandler(t *testing.T) {
	h := NewBackupHandler(&fakeBackups{}, slog.Default())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest("GET", "/api/admin/backups", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backups":[]`)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	rec = httptest.NewRecorder()
	h.Run(rec, httptest.NewRequest("POST", "/api/admin/backups", nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(7), decode[model.Backup](t, rec).ID)

	rec = httptest.NewRecorder()
	NewBackupHandler(&fakeBackups{runErr: backup.ErrDisabled}, slog.Default()).
		Run(rec, httptest.NewRequest("POST", "/api/admin/backups", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"task-api.com/task-api/internal/auth"
	middleware "task-api.com/task-api/internal/http/middlewares"
	"task-api.com/task-api/internal/http/problem"
	"task-api.com/task-api/internal/migrations"
	model "task-api.com/task-api/internal/models"
	repository "task-api.com/task-api/internal/repositories"
	"task-api.com/task-api/internal/services"
)

const testSigningKey = "handler-test-signing-key-long-enough-42"

type testApp struct {
	e      *echo.Echo
	db     *gorm.DB
	repo   *repository.TaskRepository
	issuer *auth.Issuer
	logs   *bytes.Buffer
}

type appOption func(*ServerOptions)

func withProtectAllWrites() appOption {
	return func(o *ServerOptions) { o.ProtectAllWrites = true }
}

func withRateLimit(limit int) appOption {
	return func(o *ServerOptions) {
		o.RateLimitStore = middleware.NewMemoryStore()
		o.RateLimit = limit
	}
}

func withTrustedProxies(cidrs ...string) appOption {
	return func(o *ServerOptions) {
		for _, cidr := range cidrs {
			_, ipNet, err := net.ParseCIDR(cidr)
			if err != nil {
				panic(err)
			}
			o.TrustedProxies = append(o.TrustedProxies, ipNet)
		}
	}
}

func withOpenAPI() appOption {
	return func(o *ServerOptions) { o.OpenAPIEnabled = true }
}

func newTestApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(repository.SQLiteDialector(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	_, err = migrations.Up(context.Background(), sqlDB, migrations.DriverSQLite)
	require.NoError(t, err)

	authOpts := auth.Options{
		Issuer:     "task-api",
		Audience:   "task-api-users",
		SigningKey: []byte(testSigningKey),
	}
	verifier, err := auth.NewVerifier(authOpts)
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(authOpts)
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	repo := repository.NewTaskRepository(db)

	serverOpts := ServerOptions{
		Tasks:    services.NewTaskService(repo),
		Verifier: verifier,
		Logger:   slog.New(slog.NewJSONHandler(logs, nil)),
	}
	for _, opt := range opts {
		opt(&serverOpts)
	}

	return &testApp{
		e:      NewServer(serverOpts),
		db:     db,
		repo:   repo,
		issuer: issuer,
		logs:   logs,
	}
}

func (a *testApp) token(t *testing.T) string {
	t.Helper()
	token, err := a.issuer.Issue("alice", time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testApp) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) seed(t *testing.T, titles ...string) []*model.Task {
	t.Helper()

	tasks := make([]*model.Task, 0, len(titles))
	for _, title := range titles {
		task := model.NewTask(title, false)
		require.NoError(t, a.repo.Create(context.Background(), task))
		tasks = append(tasks, task)
	}
	return tasks
}

func (a *testApp) count(t *testing.T) int64 {
	t.Helper()
	count, err := a.repo.Count(context.Background())
	require.NoError(t, err)
	return count
}

func decodeTasks(t *testing.T, rec *httptest.ResponseRecorder) []model.Task {
	t.Helper()
	var tasks []model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	return tasks
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.Problem {
	t.Helper()
	assert.Equal(t, problem.ContentType, rec.Header().Get(echo.HeaderContentType))
	var p problem.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestListTasks(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/tasks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	app.seed(t, "Install Docker", "learn Go")

	rec = app.do(t, http.MethodGet, "/tasks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 2)
	assert.ElementsMatch(t, []string{"id", "title", "isCompleted", "createdAt"}, keys(raw[0]))
	assert.Equal(t, "Install Docker", raw[0]["title"])

	_, err := time.Parse(time.RFC3339Nano, raw[0]["createdAt"].(string))
	assert.NoError(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSearchTasks(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, "Install Docker", "learn Go")

	rec := app.do(t, http.MethodGet, "/tasks/search?q=DOCK", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decodeTasks(t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Install Docker", tasks[0].Title)

	rec = app.do(t, http.MethodGet, "/tasks/search?q=nothing-here", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	all := app.do(t, http.MethodGet, "/tasks", "", "")
	for _, target := range []string{"/tasks/search", "/tasks/search?q=", "/tasks/search?q=%20%20"} {
		rec = app.do(t, http.MethodGet, target, "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, all.Body.String(), rec.Body.String(), target)
	}
}

func TestGetTask(t *testing.T) {
	app := newTestApp(t)
	task := app.seed(t, "Install Docker")[0]

	rec := app.do(t, http.MethodGet, fmt.Sprintf("/tasks/%d", task.ID), "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, task.ID, got.ID)

	rec = app.do(t, http.MethodGet, "/tasks/999", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", decodeProblem(t, rec).Detail)
}

func TestCreateTask(t *testing.T) {
	app := newTestApp(t)
	before := time.Now().UTC()

	rec := app.do(t, http.MethodPost, "/tasks", `{"title":"Write tests"}`, app.token(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Write tests", created.Title)
	assert.False(t, created.IsCompleted)
	assert.WithinDuration(t, before, created.CreatedAt, 5*time.Second)
	assert.Equal(t, fmt.Sprintf("/tasks/%d", created.ID), rec.Header().Get(echo.HeaderLocation))

	stored, err := app.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Write tests", stored.Title)
}

func TestCreateTask_IgnoresIDAndCreatedAt(t *testing.T) {
	app := newTestApp(t)
	existing := app.seed(t, "already here")[0]

	body := fmt.Sprintf(`{"id":%d,"title":"new","isCompleted":true,"createdAt":"2001-01-01T00:00:00Z"}`, existing.ID)
	rec := app.do(t, http.MethodPost, "/tasks", body, app.token(t))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEqual(t, existing.ID, created.ID)
	assert.True(t, created.IsCompleted)
	assert.True(t, created.CreatedAt.After(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.EqualValues(t, 2, app.count(t))
}

func TestCreateTask_BlankTitle(t *testing.T) {
	app := newTestApp(t)

	for _, body := range []string{`{"title":""}`, `{"title":"   "}`, `{"title":null}`, `{}`} {
		rec := app.do(t, http.MethodPost, "/tasks", body, app.token(t))
		require.Equal(t, http.StatusCreated, rec.Code, body)

		var created model.Task
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, model.DefaultTitle, created.Title, body)
	}
}

func TestCreateTask_Unauthenticated(t *testing.T) {
	app := newTestApp(t)
	app.seed(t, "existing")

	expired, err := auth.NewIssuer(auth.Options{
		Issuer:     "task-api",
		Audience:   "task-api-users",
		SigningKey: []byte(testSigningKey),
		Now:        func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	require.NoError(t, err)
	expiredToken, err := expired.Issue("alice", time.Hour)
	require.NoError(t, err)

	foreign, err := auth.NewIssuer(auth.Options{
		Issuer:     "someone-else",
		Audience:   "task-api-users",
		SigningKey: []byte(testSigningKey),
	})
	require.NoError(t, err)
	foreignToken, err := foreign.Issue("alice", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"no token":      "",
		"garbage token": "not-a-jwt",
		"expired token": expiredToken,
		"wrong issuer":  foreignToken,
	} {
		t.Run(name, func(t *testing.T) {
			rec := app.do(t, http.MethodPost, "/tasks", `{"title":"sneaky"}`, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
			assert.Equal(t, http.StatusUnauthorized, decodeProblem(t, rec).Status)
			assert.EqualValues(t, 1, app.count(t))
		})
	}
}

func TestCreateTask_BadBody(t *testing.T) {
	app := newTestApp(t)
	token := app.token(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{name: "missing body", body: "", contentType: echo.MIMEApplicationJSON, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"title":`, contentType: echo.MIMEApplicationJSON, wantStatus: http.StatusBadRequest},
		{name: "wrong field type", body: `{"isCompleted":"yes"}`, contentType: echo.MIMEApplicationJSON, wantStatus: http.StatusBadRequest},
		{name: "not json", body: `title=x`, contentType: "text/plain", wantStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, tt.contentType)
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			rec := httptest.NewRecorder()
			app.e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus, decodeProblem(t, rec).Status)
			assert.Zero(t, app.count(t))
		})
	}
}

func TestUpdateTask(t *testing.T) {
	app := newTestApp(t)
	task := app.seed(t, "before")[0]
	target := fmt.Sprintf("/tasks/%d", task.ID)

	rec := app.do(t, http.MethodPut, target, `{"title":"after","isCompleted":true}`, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	stored, err := app.repo.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", stored.Title)
	assert.True(t, stored.IsCompleted)
	assert.WithinDuration(t, task.CreatedAt, stored.CreatedAt, time.Millisecond)

	rec = app.do(t, http.MethodPut, target, `{"title":" "}`, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	stored, err = app.repo.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, stored.Title)
	assert.False(t, stored.IsCompleted)
}

func TestUpdateTask_NotFound(t *testing.T) {
	app := newTestApp(t)
	task := app.seed(t, "untouched")[0]

	rec := app.do(t, http.MethodPut, "/tasks/12345", `{"title":"x","isCompleted":true}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decodeProblem(t, rec).Status)

	stored, err := app.repo.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "untouched", stored.Title)
	assert.False(t, stored.IsCompleted)
}

func TestUpdateTask_InvalidInput(t *testing.T) {
	app := newTestApp(t)
	task := app.seed(t, "x")[0]

	rec := app.do(t, http.MethodPut, "/tasks/abc", `{"title":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "task id must be an integer", decodeProblem(t, rec).Detail)

	rec = app.do(t, http.MethodPut, fmt.Sprintf("/tasks/%d", task.ID), `[1,2`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON payload", decodeProblem(t, rec).Detail)
}

func TestDeleteTask(t *testing.T) {
	app := newTestApp(t)
	task := app.seed(t, "short lived")[0]
	target := fmt.Sprintf("/tasks/%d", task.ID)

	rec := app.do(t, http.MethodDelete, target, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := app.repo.FindByID(context.Background(), task.ID)
	assert.Error(t, err)

	rec = app.do(t, http.MethodDelete, target, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(t, http.MethodDelete, "/tasks/nope", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectAllWrites(t *testing.T) {
	app := newTestApp(t, withProtectAllWrites())
	task := app.seed(t, "guarded")[0]
	target := fmt.Sprintf("/tasks/%d", task.ID)

	rec := app.do(t, http.MethodPut, target, `{"title":"changed"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(t, http.MethodDelete, target, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	stored, err := app.repo.FindByID(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "guarded", stored.Title)

	rec = app.do(t, http.MethodPut, target, `{"title":"changed"}`, app.token(t))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = app.do(t, http.MethodDelete, target, "", app.token(t))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// reads stay public
	rec = app.do(t, http.MethodGet, "/tasks", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFaultBoundary_StorageFailure(t *testing.T) {
	app := newTestApp(t)
	sqlDB, err := app.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/tasks", ""},
		{http.MethodGet, "/tasks/search?q=x", ""},
		{http.MethodPut, "/tasks/1", `{"title":"x"}`},
		{http.MethodDelete, "/tasks/1", ""},
		{http.MethodGet, "/healthz", ""},
	} {
		rec := app.do(t, tc.method, tc.target, tc.body, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code, tc.target)

		assert.JSONEq(t,
			`{"status":500,"title":"Server Error","detail":"An unexpected error occurred on our end. Please try again later."}`,
			rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "closed")
	}

	assert.Contains(t, app.logs.String(), "unhandled error")
	assert.Contains(t, app.logs.String(), "database is closed")
}

func TestFaultBoundary_Panic(t *testing.T) {
	app := newTestApp(t)
	app.e.GET("/boom", func(c echo.Context) error {
		panic("secret internal state")
	})

	rec := app.do(t, http.MethodGet, "/boom", "", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	p := decodeProblem(t, rec)
	assert.Equal(t, ServerError, p)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, app.logs.String(), "panic recovered")
	assert.Contains(t, app.logs.String(), "secret internal state")
}

func TestFaultBoundary_UnknownRoute(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decodeProblem(t, rec).Status)

	rec = app.do(t, http.MethodPatch, "/tasks", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRateLimit(t *testing.T) {
	app := newTestApp(t, withRateLimit(2))

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/tasks", "", "").Code)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/tasks", "", "").Code)

	rec := app.do(t, http.MethodGet, "/tasks", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", decodeProblem(t, rec).Detail)
}

func (a *testApp) getFrom(forwardedFor string) int {
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(echo.HeaderXForwardedFor, forwardedFor)
	req.Header.Set(echo.HeaderXRealIP, forwardedFor)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit_IgnoresForwardedHeadersByDefault(t *testing.T) {
	app := newTestApp(t, withRateLimit(2))

	codes := make([]int, 0, 5)
	for i := 1; i <= 5; i++ {
		codes = append(codes, app.getFrom(fmt.Sprintf("203.0.113.%d", i)))
	}

	assert.Equal(t, []int{200, 200, 429, 429, 429}, codes)
}

func TestRateLimit_TrustedProxyForwardsClientIP(t *testing.T) {
	// httptest requests come from 192.0.2.1
	app := newTestApp(t, withRateLimit(2), withTrustedProxies("192.0.2.0/24"))

	for i := 1; i <= 5; i++ {
		assert.Equal(t, http.StatusOK, app.getFrom(fmt.Sprintf("203.0.113.%d", i)))
	}

	assert.Equal(t, http.StatusOK, app.getFrom("198.51.100.7"))
	assert.Equal(t, http.StatusOK, app.getFrom("198.51.100.7"))
	assert.Equal(t, http.StatusTooManyRequests, app.getFrom("198.51.100.7"))
}

func TestOpenAPI(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		app := newTestApp(t)
		assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/openapi.json", "", "").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		app := newTestApp(t, withOpenAPI())
		rec := app.do(t, http.MethodGet, "/openapi.json", "", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var doc struct {
			OpenAPI string                     `json:"openapi"`
			Paths   map[string]json.RawMessage `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "3.0.3", doc.OpenAPI)
		assert.Contains(t, doc.Paths, "/tasks")
		assert.Contains(t, doc.Paths, "/tasks/{id}")
		assert.Contains(t, doc.Paths, "/tasks/search")
	})
}

func TestCreateTask_WithoutAuthGateLogsWarning(t *testing.T) {
	app := newTestApp(t)

	logs := &bytes.Buffer{}
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	e := echo.New()
	e.POST("/tasks", NewHandler(services.NewTaskService(app.repo)).CreateTask)

	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"title":"ungated"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, logs.String(), "task created without an authenticated caller")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequestID(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, http.MethodGet, "/tasks", "", "")
	_, err := uuid.Parse(rec.Header().Get(echo.HeaderXRequestID))
	assert.NoError(t, err)
}

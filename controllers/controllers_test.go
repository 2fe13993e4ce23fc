package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/config"
	"github.com/yashpalsanam/foresite-sub001/database"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/middlewares"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/router"
	"github.com/yashpalsanam/foresite-sub001/scheduler"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	utils.InitLogger("warn", "text")
	utils.SetJWTSecret([]byte("controller-secret"))
	os.Exit(m.Run())
}

type fakeQueue struct {
	mu      sync.Mutex
	stats   queue.Stats
	failed  []queue.EmailJob
	limit   int
	retried bool
}

func (q *fakeQueue) Stats(context.Context) (queue.Stats, error) { return q.stats, nil }

func (q *fakeQueue) Failed(_ context.Context, limit int) ([]queue.EmailJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = limit
	return q.failed, nil
}

func (q *fakeQueue) RetryFailed(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = true
	return len(q.failed), nil
}

type noEmails struct{}

func (noEmails) Enqueue(context.Context, queue.EmailJob) (string, error) { return uuid.NewString(), nil }

type env struct {
	t      *testing.T
	db     *gorm.DB
	hub    *realtime.Hub
	queue  *fakeQueue
	tasks  *scheduler.Runner
	dir    string
	engine *gin.Engine

	admin, agent, buyer *models.User
}

type envelope struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Data       json.RawMessage        `json:"data"`
	Pagination map[string]interface{} `json:"pagination"`
	Errors     []utils.FieldError     `json:"errors"`
}

func newEnv(t *testing.T, authLimiter *middlewares.RateLimiter) *env {
	t.Helper()
	db, err := config.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	e := &env{t: t, db: db, hub: realtime.NewHub(nil), queue: &fakeQueue{}, tasks: scheduler.New(), dir: t.TempDir()}
	storage, err := media.NewLocalStorage(e.dir, "http://localhost:8080")
	require.NoError(t, err)

	store := cache.New(cache.NewMemoryStore(time.Minute))
	notifications := services.NewNotificationService(db, e.hub)
	properties := services.NewPropertyService(db, storage, store, services.NewViewRecorder(db, 16))
	inquiries := services.NewInquiryService(db, store, notifications, noEmails{}, "http://localhost:8080")
	users := services.NewUserService(db, noEmails{}, "http://localhost:8080")

	e.engine = router.SetupRouter(router.Dependencies{
		Users:         users,
		Properties:    properties,
		Inquiries:     inquiries,
		Notifications: notifications,
		Admin:         services.NewAdminService(db, properties, inquiries),
		Cache:         store,
		Storage:       storage,
		UploadDir:     e.dir,
		Hub:           e.hub,
		Queue:         e.queue,
		Tasks:         e.tasks,
		AuthLimiter:   authLimiter,
	})

	e.admin = e.user(models.RoleAdmin, "admin@example.com")
	e.agent = e.user(models.RoleAgent, "agent@example.com")
	e.buyer = e.user(models.RoleUser, "buyer@example.com")
	return e
}

func (e *env) user(role models.Role, email string) *models.User {
	e.t.Helper()
	hashed, err := utils.HashPassword("password123")
	require.NoError(e.t, err)
	u := models.User{Name: strings.Split(email, "@")[0], Email: email, Password: hashed, Role: role, IsActive: true}
	require.NoError(e.t, e.db.Create(&u).Error)
	return &u
}

func tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(u.ID, string(u.Role))
	require.NoError(t, err)
	return token
}

func (e *env) serve(req *http.Request, as *models.User) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(e.t, as))
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var out envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (e *env) json(method, path string, as *models.User, body interface{}) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return e.serve(req, as)
}

type upload struct {
	field, name string
	content     []byte
}

func (e *env) multipart(path string, as *models.User, files []upload, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(e.t, err)
		_, err = part.Write(f.content)
		require.NoError(e.t, err)
	}
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.serve(req, as)
}

func (e *env) listing(owner *models.User) uint {
	e.t.Helper()
	w, out := e.json(http.MethodPost, "/api/properties", owner, map[string]interface{}{
		"title":        "Garden flat",
		"type":         "apartment",
		"price":        1900,
		"listing_type": "rent",
		"address":      map[string]string{"street": "9 Elm St", "city": "Portland", "state": "OR", "zip_code": "97205", "country": "USA"},
		"location":     map[string]float64{"lat": 45.52, "lng": -122.68},
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var p struct {
		ID uint `json:"id"`
	}
	require.NoError(e.t, json.Unmarshal(out.Data, &p))
	return p.ID
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.json(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, out.Success)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w, out = e.json(http.MethodGet, "/api/nothing-here", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, out.Success)
}

func TestValidationErrorEnvelope(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.json(http.MethodPost, "/api/properties", e.agent, map[string]interface{}{
		"title":    "",
		"type":     "castle",
		"price":    -5,
		"location": map[string]float64{"lat": 123, "lng": 0},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, out.Success)

	fields := map[string]bool{}
	for _, fe := range out.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["title"], out.Errors)
	assert.True(t, fields["type"], out.Errors)
	assert.True(t, fields["location.lat"], out.Errors)

	w, _ = e.json(http.MethodGet, "/api/properties/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaginatedUserListing(t *testing.T) {
	e := newEnv(t, nil)
	e.user(models.RoleAgent, "second-agent@example.com")

	w, out := e.json(http.MethodGet, "/api/users?page=2&limit=2", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, out.Pagination["totalItems"])
	assert.EqualValues(t, 2, out.Pagination["totalPages"])
	assert.EqualValues(t, 2, out.Pagination["currentPage"])

	var users []map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Data, &users))
	assert.Len(t, users, 2)
	assert.NotContains(t, users[0], "password")

	w, _ = e.json(http.MethodGet, "/api/users?role=agent", e.agent, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	e := newEnv(t, middlewares.NewRateLimiter(2, time.Minute))
	creds := map[string]string{"email": "buyer@example.com", "password": "password123"}

	for i := 0; i < 2; i++ {
		w, _ := e.json(http.MethodPost, "/api/auth/login", nil, creds)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w, _ := e.json(http.MethodPost, "/api/auth/login", nil, creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRegisterNormalizesEmail(t *testing.T) {
	e := newEnv(t, nil)

	w, out := e.json(http.MethodPost, "/api/auth/register", nil, map[string]string{
		"name": "  Padded  ", "email": "  New.Buyer@Example.COM ", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var session struct {
		User struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &session))
	assert.Equal(t, "new.buyer@example.com", session.User.Email)
	assert.Equal(t, "Padded", session.User.Name)

	w, _ = e.json(http.MethodPost, "/api/auth/login", nil, map[string]string{"email": " NEW.BUYER@example.com", "password": "password123"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, out = e.json(http.MethodPost, "/api/auth/register", nil, map[string]string{"name": "x", "email": "not-an-email", "password": "password123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, "email", out.Errors[0].Field)
}

func TestGenericUpload(t *testing.T) {
	e := newEnv(t, nil)
	png := []upload{{field: "file", name: "floorplan.png", content: pngBytes}}

	w, _ := e.multipart("/api/uploads", nil, png, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.multipart("/api/uploads", e.buyer, png, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.multipart("/api/uploads", e.agent, png, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var file struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &file))
	assert.Equal(t, "image/png", file.MimeType)
	require.True(t, strings.HasPrefix(file.URL, "http://localhost:8080/uploads/"))

	// The stored file is served back from the static route.
	served := httptest.NewRecorder()
	e.engine.ServeHTTP(served, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(file.URL, "http://localhost:8080"), nil))
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, pngBytes, served.Body.Bytes())

	w, out = e.multipart("/api/uploads", e.agent, []upload{{field: "file", name: "notes.png", content: []byte("plain text, not an image")}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, "file", out.Errors[0].Field)

	w, _ = e.multipart("/api/uploads", e.agent, nil, map[string]string{"other": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOversizedUploadIsRejectedWhileReading(t *testing.T) {
	e := newEnv(t, nil)
	huge := make([]byte, media.RequestLimit(1)+1)
	copy(huge, pngBytes)

	w, out := e.multipart("/api/uploads", e.agent, []upload{{field: "file", name: "huge.png", content: huge}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body too large", out.Message)
	require.NotEmpty(t, out.Errors)
	assert.Equal(t, "file", out.Errors[0].Field)

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPropertyImageEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	id := e.listing(e.agent)
	base := fmt.Sprintf("/api/properties/%d/images", id)

	w, out := e.multipart(base, e.agent, []upload{
		{field: "images", name: "front.png", content: pngBytes},
		{field: "images", name: "back.png", content: pngBytes},
	}, map[string]string{"primary_index": "1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var prop struct {
		PrimaryImage string `json:"primary_image"`
		Images       []struct {
			ID        uint   `json:"id"`
			URL       string `json:"url"`
			IsPrimary bool   `json:"is_primary"`
		} `json:"images"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &prop))
	require.Len(t, prop.Images, 2)
	assert.False(t, prop.Images[0].IsPrimary)
	assert.True(t, prop.Images[1].IsPrimary)
	assert.Equal(t, prop.Images[1].URL, prop.PrimaryImage)

	w, _ = e.multipart(base, e.agent, []upload{{field: "images", name: "x.png", content: pngBytes}}, map[string]string{"primary_index": "first"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := e.user(models.RoleAgent, "other-agent@example.com")
	w, _ = e.json(http.MethodPatch, fmt.Sprintf("%s/%d/primary", base, prop.Images[0].ID), other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out = e.json(http.MethodPatch, fmt.Sprintf("%s/%d/primary", base, prop.Images[0].ID), e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(out.Data, &prop))
	assert.Equal(t, prop.Images[0].URL, prop.PrimaryImage)

	removed := prop.Images[1]
	w, _ = e.json(http.MethodDelete, fmt.Sprintf("%s/%d", base, removed.ID), e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, err := os.Stat(filepath.Join(e.dir, filepath.Base(removed.URL)))
	assert.True(t, os.IsNotExist(err))

	w, _ = e.json(http.MethodDelete, fmt.Sprintf("%s/%d", base, removed.ID), e.agent, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	e := newEnv(t, nil)

	w, _ := e.json(http.MethodPost, "/api/notifications", e.agent, map[string]string{"title": "x", "message": "y"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.json(http.MethodPost, "/api/notifications", e.admin, map[string]string{
		"role": "agent", "title": "Maintenance", "message": "Listings are read-only tonight",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.JSONEq(t, `{"recipients":1}`, string(out.Data))

	w, out = e.json(http.MethodGet, "/api/notifications?unread=true", e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var notes []models.Notification
	require.NoError(t, json.Unmarshal(out.Data, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "Maintenance", notes[0].Title)

	// Another user's notification is invisible.
	w, _ = e.json(http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", notes[0].ID), e.buyer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.json(http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", notes[0].ID), e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, out = e.json(http.MethodGet, "/api/notifications/unread-count", e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0}`, string(out.Data))

	w, out = e.json(http.MethodPatch, "/api/notifications/read-all", e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":0}`, string(out.Data))

	w, _ = e.json(http.MethodDelete, fmt.Sprintf("/api/notifications/%d", notes[0].ID), e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, out = e.json(http.MethodGet, "/api/notifications", e.agent, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, out.Pagination["totalItems"])
}

func TestNotificationStreamDeliversLiveEvents(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/notifications/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+tokenFor(t, e.agent), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Connections(e.agent.ID) == 1 }, time.Second, 10*time.Millisecond)

	w, _ := e.json(http.MethodPost, "/api/notifications", e.admin, map[string]interface{}{
		"user_id": e.agent.ID, "title": "Hello", "message": "You have a new lead",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.EventNotification, msg.Event)
	assert.Contains(t, string(msg.Data), "You have a new lead")

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, realtime.EventUnreadCount, msg.Event)
	assert.JSONEq(t, `{"count":1}`, string(msg.Data))
}

func TestAdminOperationsEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	e.queue.stats = queue.Stats{Waiting: 3, Failed: 2}
	e.queue.failed = []queue.EmailJob{{ID: "a", To: "x@example.com"}, {ID: "b", To: "y@example.com"}}

	ran := make(chan struct{}, 1)
	require.NoError(t, e.tasks.Schedule("ping", "@hourly", func(context.Context) error {
		ran <- struct{}{}
		return nil
	}))
	t.Cleanup(e.tasks.StopAll)

	w, _ := e.json(http.MethodGet, "/api/admin/queue", e.agent, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.json(http.MethodGet, "/api/admin/queue", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"waiting":3,"active":0,"delayed":0,"completed":0,"failed":2}`, string(out.Data))

	w, _ = e.json(http.MethodGet, "/api/admin/queue/failed", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, e.queue.limit)
	w, _ = e.json(http.MethodGet, "/api/admin/queue/failed?limit=5", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, e.queue.limit)
	w, _ = e.json(http.MethodGet, "/api/admin/queue/failed?limit=-1", e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = e.json(http.MethodPost, "/api/admin/queue/retry-failed", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, e.queue.retried)
	assert.JSONEq(t, `{"requeued":2}`, string(out.Data))

	w, out = e.json(http.MethodGet, "/api/admin/tasks", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(out.Data), `"name":"ping"`)

	w, _ = e.json(http.MethodPost, "/api/admin/tasks/ping/run", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	select {
	case <-ran:
	default:
		t.Fatal("task did not run")
	}
	w, _ = e.json(http.MethodPost, "/api/admin/tasks/missing/run", e.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPropertyReportDownload(t *testing.T) {
	e := newEnv(t, nil)
	e.listing(e.agent)

	w, _ := e.json(http.MethodGet, "/api/admin/reports/properties.pdf", e.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w, _ = e.json(http.MethodGet, "/api/admin/dashboard", e.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

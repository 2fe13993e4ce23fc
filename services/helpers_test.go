package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/config"
	"github.com/yashpalsanam/foresite-sub001/database"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, role models.Role, email string) *models.User {
	t.Helper()
	hashed, err := utils.HashPassword("password123")
	require.NoError(t, err)
	u := models.User{Name: strings.Split(email, "@")[0], Email: email, Password: hashed, Role: role, IsActive: true}
	require.NoError(t, db.Create(&u).Error)
	return &u
}

func actorFor(u *models.User) *Actor {
	return &Actor{UserID: u.ID, Role: u.Role}
}

func statusOf(err error) int {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

func ptr[T any](v T) *T { return &v }

func sampleInput(title string) PropertyInput {
	return PropertyInput{
		Title:       title,
		Description: "Bright corner unit",
		Type:        models.PropertyTypeHouse,
		Status:      models.StatusAvailable,
		ListingType: models.ListingSale,
		Price:       ptr(450000.0),
		Address:     AddressInput{Street: "12 Oak St", City: "Austin", State: "TX", ZipCode: "78701", Country: "USA"},
		Location:    LocationInput{Lat: ptr(30.2672), Lng: ptr(-97.7431)},
		Features:    FeaturesInput{Bedrooms: 3, Bathrooms: 2, Area: 1800, AreaUnit: "sqft"},
		Amenities:   []string{"pool", "garage"},
	}
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("images", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["images"][0]
}

type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	seq     int
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string][]byte{}}
}

func (m *memStorage) Save(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	url := fmt.Sprintf("mem://%d-%s", m.seq, name)
	m.files[url] = data
	return url, nil
}

func (m *memStorage) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, url)
	m.deleted = append(m.deleted, url)
	return nil
}

type recordingViews struct {
	mu    sync.Mutex
	views []models.PropertyView
}

func (r *recordingViews) Record(v models.PropertyView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.EmailJob
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, job queue.EmailJob) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return uuid.NewString(), nil
}

func (r *recordingEnqueuer) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.To)
	}
	return out
}

type recordingPusher struct {
	mu   sync.Mutex
	sent map[uint][]realtime.Message
}

func (p *recordingPusher) SendToUser(userID uint, msg realtime.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = map[uint][]realtime.Message{}
	}
	p.sent[userID] = append(p.sent[userID], msg)
	return 1
}

type fixture struct {
	db            *gorm.DB
	cache         *cache.Cache
	storage       *memStorage
	views         *recordingViews
	emails        *recordingEnqueuer
	pusher        *recordingPusher
	properties    *PropertyService
	inquiries     *InquiryService
	notifications *NotificationService
	users         *UserService
	admin         *AdminService

	adminUser *models.User
	agentA    *models.User
	agentB    *models.User
	buyer     *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	utils.SetJWTSecret([]byte("test-secret"))

	f := &fixture{
		db:      newTestDB(t),
		cache:   cache.New(cache.NewMemoryStore(time.Minute)),
		storage: newMemStorage(),
		views:   &recordingViews{},
		emails:  &recordingEnqueuer{},
		pusher:  &recordingPusher{},
	}
	f.notifications = NewNotificationService(f.db, f.pusher)
	f.properties = NewPropertyService(f.db, f.storage, f.cache, f.views)
	f.inquiries = NewInquiryService(f.db, f.cache, f.notifications, f.emails, "http://localhost:8080")
	f.users = NewUserService(f.db, f.emails, "http://localhost:8080")
	f.admin = NewAdminService(f.db, f.properties, f.inquiries)

	f.adminUser = createUser(t, f.db, models.RoleAdmin, "admin@example.com")
	f.agentA = createUser(t, f.db, models.RoleAgent, "alice@example.com")
	f.agentB = createUser(t, f.db, models.RoleAgent, "bob@example.com")
	f.buyer = createUser(t, f.db, models.RoleUser, "buyer@example.com")
	return f
}

func (f *fixture) createProperty(t *testing.T, owner *models.User, in PropertyInput) *models.Property {
	t.Helper()
	p, err := f.properties.Create(context.Background(), in, actorFor(owner))
	require.NoError(t, err)
	return p
}

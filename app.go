package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/cache"
	"github.com/yashpalsanam/foresite-sub001/config"
	"github.com/yashpalsanam/foresite-sub001/mailer"
	"github.com/yashpalsanam/foresite-sub001/media"
	"github.com/yashpalsanam/foresite-sub001/queue"
	"github.com/yashpalsanam/foresite-sub001/realtime"
	"github.com/yashpalsanam/foresite-sub001/router"
	"github.com/yashpalsanam/foresite-sub001/scheduler"
	"github.com/yashpalsanam/foresite-sub001/services"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

const (
	notificationRetention = 90 * 24 * time.Hour
	viewRetention         = 180 * 24 * time.Hour
	viewBufferSize        = 1024
)

// app holds the long-lived collaborators shared by the serve and worker commands.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	redis   *redis.Client
	cache   *cache.Cache
	storage *media.LocalStorage
	hub     *realtime.Hub
	queue   *queue.EmailQueue
	views   *services.ViewRecorder
	tasks   *scheduler.Runner

	users         *services.UserService
	properties    *services.PropertyService
	inquiries     *services.InquiryService
	notifications *services.NotificationService
	admin         *services.AdminService
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := config.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	client, err := config.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	var m mailer.Mailer = mailer.LogMailer{}
	if cfg.MailEnabled() {
		m = mailer.NewSendGridMailer(cfg.SendgridAPIKey, cfg.MailFrom, cfg.MailFromName)
	} else {
		utils.InfoLogger.Warn("SENDGRID_API_KEY not set, outgoing email will only be logged")
	}
	return newApp(cfg, db, client, m)
}

func newApp(cfg *config.Config, db *gorm.DB, client *redis.Client, m mailer.Mailer) (*app, error) {
	utils.SetJWTSecret([]byte(cfg.JWTSecret))

	storage, err := media.NewLocalStorage(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		redis:   client,
		cache:   cache.New(cache.NewRedisStore(client)),
		storage: storage,
		hub:     realtime.NewHub(cfg.CORSOrigins),
		queue:   queue.NewEmailQueue(client, m),
		views:   services.NewViewRecorder(db, viewBufferSize),
		tasks:   scheduler.New(),
	}
	a.notifications = services.NewNotificationService(db, a.hub)
	a.properties = services.NewPropertyService(db, storage, a.cache, a.views)
	a.inquiries = services.NewInquiryService(db, a.cache, a.notifications, a.queue, cfg.PublicBaseURL)
	a.users = services.NewUserService(db, a.queue, cfg.PublicBaseURL)
	a.admin = services.NewAdminService(db, a.properties, a.inquiries)
	return a, nil
}

func (a *app) router() *gin.Engine {
	return router.SetupRouter(router.Dependencies{
		Users:         a.users,
		Properties:    a.properties,
		Inquiries:     a.inquiries,
		Notifications: a.notifications,
		Admin:         a.admin,
		Cache:         a.cache,
		Storage:       a.storage,
		UploadDir:     a.storage.Dir(),
		Hub:           a.hub,
		Queue:         a.queue,
		Tasks:         a.tasks,
	})
}

func registerTasks(a *app) error {
	tasks := []struct {
		name string
		spec string
		fn   scheduler.TaskFunc
	}{
		{"prune-read-notifications", "@daily", func(ctx context.Context) error {
			n, err := a.notifications.PruneRead(ctx, notificationRetention)
			if err == nil {
				utils.InfoLogger.WithField("removed", n).Info("Pruned read notifications")
			}
			return err
		}},
		{"prune-property-views", "@weekly", func(ctx context.Context) error {
			n, err := a.views.PruneOlderThan(ctx, viewRetention)
			if err == nil {
				utils.InfoLogger.WithField("removed", n).Info("Pruned property views")
			}
			return err
		}},
		{"log-queue-stats", "@hourly", func(ctx context.Context) error {
			stats, err := a.queue.Stats(ctx)
			if err != nil {
				return err
			}
			utils.InfoLogger.WithFields(logrus.Fields{
				"waiting":   stats.Waiting,
				"active":    stats.Active,
				"delayed":   stats.Delayed,
				"completed": stats.Completed,
				"failed":    stats.Failed,
			}).Info("Email queue stats")
			return nil
		}},
	}
	for _, t := range tasks {
		if err := a.tasks.Schedule(t.name, t.spec, t.fn); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	if err := a.redis.Close(); err != nil {
		utils.ErrorLogger.WithError(err).Warn("Closing redis client")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

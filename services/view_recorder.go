package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/models"
	"github.com/yashpalsanam/foresite-sub001/utils"
	"gorm.io/gorm"
)

// ViewRecorder writes property views off the request path. Record never blocks; when the
// buffer is full the event is dropped.
type ViewRecorder struct {
	db     *gorm.DB
	events chan models.PropertyView
	quit   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func NewViewRecorder(db *gorm.DB, buffer int) *ViewRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &ViewRecorder{
		db:     db,
		events: make(chan models.PropertyView, buffer),
		quit:   make(chan struct{}),
	}
}

func (r *ViewRecorder) Record(view models.PropertyView) {
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now()
	}
	select {
	case r.events <- view:
	default:
		utils.ErrorLogger.WithField("property_id", view.PropertyID).Warn("View buffer full, event dropped")
	}
}

// Start drains events until ctx is cancelled or Stop is called. Buffered events are
// flushed before the worker exits.
func (r *ViewRecorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case ev := <-r.events:
				r.persist(ev)
			case <-ctx.Done():
				r.flush()
				return
			case <-r.quit:
				r.flush()
				return
			}
		}
	}()
}

func (r *ViewRecorder) Stop() {
	r.once.Do(func() { close(r.quit) })
	r.wg.Wait()
}

func (r *ViewRecorder) flush() {
	for {
		select {
		case ev := <-r.events:
			r.persist(ev)
		default:
			return
		}
	}
}

func (r *ViewRecorder) persist(ev models.PropertyView) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		return tx.Model(&models.Property{}).Where("id = ?", ev.PropertyID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
	})
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"property_id": ev.PropertyID}).WithError(err).Error("Record property view")
	}
}

// PruneOlderThan deletes view events older than age.
func (r *ViewRecorder) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", time.Now().Add(-age)).Delete(&models.PropertyView{})
	return res.RowsAffected, res.Error
}

// Package scheduler runs named maintenance tasks on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/yashpalsanam/foresite-sub001/utils"
)

var (
	ErrDuplicateTask = errors.New("task already scheduled")
	ErrUnknownTask   = errors.New("unknown task")
)

type TaskFunc func(ctx context.Context) error

type TaskInfo struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	Next      time.Time  `json:"next_run"`
	Prev      *time.Time `json:"previous_run,omitempty"`
	Runs      int        `json:"runs"`
	LastError string     `json:"last_error,omitempty"`
}

type task struct {
	name    string
	spec    string
	fn      TaskFunc
	entryID cron.EntryID

	mu        sync.Mutex
	runs      int
	lastError string
}

type Runner struct {
	cron   *cron.Cron
	parser cron.Parser
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	tasks map[string]*task
}

// New accepts standard five-field specs, an optional leading seconds field and
// descriptors such as @daily or @every 1h. Schedules are evaluated in UTC.
func New() *Runner {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:   cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		parser: parser,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
}

func (r *Runner) Schedule(name, spec string, fn TaskFunc) error {
	if _, err := r.parser.Parse(spec); err != nil {
		return fmt.Errorf("task %s: invalid schedule %q: %w", name, spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, name)
	}

	t := &task{name: name, spec: spec, fn: fn}
	id, err := r.cron.AddFunc(spec, func() { r.execute(r.ctx, t) })
	if err != nil {
		return fmt.Errorf("task %s: %w", name, err)
	}
	t.entryID = id
	r.tasks[name] = t

	utils.InfoLogger.WithFields(logrus.Fields{"task": name, "spec": spec}).Info("Task scheduled")
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop unschedules a single task. It reports whether the task existed.
func (r *Runner) Stop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[name]
	if !ok {
		return false
	}
	r.cron.Remove(t.entryID)
	delete(r.tasks, name)
	utils.InfoLogger.WithField("task", name).Info("Task stopped")
	return true
}

// StopAll halts the scheduler and waits for running tasks to return.
func (r *Runner) StopAll() {
	r.cancel()
	<-r.cron.Stop().Done()
}

// RunNow executes a task immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	t, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return r.execute(ctx, t)
}

func (r *Runner) Tasks() []TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		entry := r.cron.Entry(t.entryID)
		info := TaskInfo{Name: t.name, Spec: t.spec, Next: entry.Next}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			info.Prev = &prev
		}
		if info.Next.IsZero() {
			if sched, err := r.parser.Parse(t.spec); err == nil {
				info.Next = sched.Next(time.Now().UTC())
			}
		}
		t.mu.Lock()
		info.Runs = t.runs
		info.LastError = t.lastError
		t.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Runner) execute(ctx context.Context, t *task) (err error) {
	log := utils.InfoLogger.WithField("task", t.name)
	start := time.Now()
	log.Info("Task started")

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}

		t.mu.Lock()
		t.runs++
		t.lastError = ""
		if err != nil {
			t.lastError = err.Error()
		}
		t.mu.Unlock()

		elapsed := time.Since(start)
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"task": t.name, "duration": elapsed.String()}).
				WithError(err).Error("Task failed")
			return
		}
		log.WithField("duration", elapsed.String()).Info("Task completed")
	}()

	return t.fn(ctx)
}

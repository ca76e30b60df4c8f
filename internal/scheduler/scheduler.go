// Package scheduler 按 cron 表达式定时执行维护任务（例如夜间拉取与重建形态库）。
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"voltrade/internal/logger"
	"voltrade/internal/market"

	"github.com/robfig/cron/v3"
)

// Job 是一个可被定时或手动触发的任务。
type Job func(ctx context.Context) error

type entry struct {
	spec string
	id   cron.EntryID
	job  Job
	mu   sync.Mutex
}

type Scheduler struct {
	ctx  context.Context
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*entry
}

// New 创建使用标准五段式表达式（UTC）的调度器。
func New(ctx context.Context) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler{
		ctx:  ctx,
		cron: cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cronLogger{})),
		jobs: make(map[string]*entry),
	}
}

// Register 注册任务；同名任务重复注册返回 ConfigurationError。
func (s *Scheduler) Register(name, spec string, job Job) error {
	if job == nil {
		return &market.ConfigurationError{Key: "schedule." + name, Reason: "job is nil"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return &market.ConfigurationError{Key: "schedule." + name, Reason: "already registered"}
	}
	e := &entry{spec: spec, job: job}
	id, err := s.cron.AddFunc(spec, func() { s.run(name, e) })
	if err != nil {
		return &market.ConfigurationError{Key: "schedule." + name, Reason: err.Error()}
	}
	e.id = id
	s.jobs[name] = e
	logger.Infof("Scheduler: 注册任务 %s spec=%q", name, spec)
	return nil
}

// RunNow 立即同步执行一次任务；任务仍在运行时直接跳过。
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(name, e)
}

func (s *Scheduler) run(name string, e *entry) error {
	if !e.mu.TryLock() {
		logger.Warnf("Scheduler: 任务 %s 仍在运行，跳过本次触发", name)
		return nil
	}
	defer e.mu.Unlock()
	if err := s.ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	logger.Infof("Scheduler: 任务 %s 开始", name)
	if err := e.job(s.ctx); err != nil {
		logger.Errorf("Scheduler: 任务 %s 失败: %v", name, err)
		return err
	}
	logger.Infof("Scheduler: 任务 %s 完成，用时 %s", name, time.Since(started).Truncate(time.Millisecond))
	return nil
}

// Next 返回任务的下一次触发时间，未启动时为零值。
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(e.id).Next, true
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Infof("Scheduler: started jobs=%v", s.Jobs())
}

// Stop 停止调度并等待正在运行的任务结束。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Infof("Scheduler: stopped")
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}

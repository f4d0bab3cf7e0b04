package core

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Submitter is the narrow interface the Scheduler needs from Client:
// submit a cloned template task.
type Submitter interface {
	Submit(task *Task) (string, error)
}

// schedule is one named entry tracked by the Scheduler.
type schedule struct {
	name     string
	template *Task
	stopCh   chan struct{}
}

// Scheduler maintains named periodic/cron schedules, spec.md §4.9. On each
// fire it clones the template (deep-copying its Payload), assigns a fresh
// id, and submits it. Missed ticks during downtime are never back-filled:
// the next fire is always strictly in the future relative to when the
// schedule resumes.
type Scheduler struct {
	mu        sync.Mutex
	submitter Submitter
	schedules map[string]*schedule
	cronParser cron.Parser
}

// NewScheduler constructs a Scheduler that submits through submitter.
func NewScheduler(submitter Submitter) *Scheduler {
	return &Scheduler{
		submitter: submitter,
		schedules: make(map[string]*schedule),
		cronParser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
		),
	}
}

func cloneTemplate(template *Task) (*Task, error) {
	cfg := template.Config()
	return NewTask(template.Name(), template.Payload().Clone(), cfg)
}

// AddPeriodic registers a schedule that fires at now+interval, then every
// interval, under name. Re-registering name replaces the previous entry.
func (s *Scheduler) AddPeriodic(name string, template *Task, interval time.Duration) error {
	if interval <= 0 {
		return NewError(KindInvalidArgument, errString("interval must be > 0"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	stopCh := make(chan struct{})
	s.schedules[name] = &schedule{name: name, template: template, stopCh: stopCh}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.fire(template)
			}
		}
	}()
	return nil
}

// AddCron registers a schedule that fires at each wall-clock minute
// matching a standard 5-field cron expression under name.
func (s *Scheduler) AddCron(name string, template *Task, expression string) error {
	sched, err := s.cronParser.Parse(expression)
	if err != nil {
		return NewError(KindInvalidArgument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)

	stopCh := make(chan struct{})
	s.schedules[name] = &schedule{name: name, template: template, stopCh: stopCh}

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-stopCh:
				timer.Stop()
				return
			case <-timer.C:
				s.fire(template)
			}
		}
	}()
	return nil
}

func (s *Scheduler) fire(template *Task) {
	task, err := cloneTemplate(template)
	if err != nil {
		return
	}
	_, _ = s.submitter.Submit(task)
}

// Remove stops and deletes the named schedule. Idempotent: removing an
// unknown name is a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	if existing, ok := s.schedules[name]; ok {
		close(existing.stopCh)
		delete(s.schedules, name)
	}
}

// List returns the names of all currently active schedules.
func (s *Scheduler) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.schedules))
	for name := range s.schedules {
		names = append(names, name)
	}
	return names
}

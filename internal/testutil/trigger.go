package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hugh/go-scout/pkg/util"
	"github.com/robfig/cron/v3"
)

// FakeTrigger records registrations and fires them on demand instead of on a
// wall clock.
type FakeTrigger struct {
	mu      sync.Mutex
	next    cron.EntryID
	entries map[cron.EntryID]fakeEntry
	Started bool
	Stopped bool
}

type fakeEntry struct {
	spec     string
	schedule cron.Schedule
	cmd      func()
}

func NewFakeTrigger() *FakeTrigger {
	return &FakeTrigger{entries: make(map[cron.EntryID]fakeEntry)}
}

func (f *FakeTrigger) AddFunc(spec string, cmd func()) (cron.EntryID, error) {
	schedule, err := util.CronParser().Parse(spec)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.entries[f.next] = fakeEntry{spec: spec, schedule: schedule, cmd: cmd}
	return f.next, nil
}

func (f *FakeTrigger) Remove(id cron.EntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

func (f *FakeTrigger) Start() {
	f.mu.Lock()
	f.Started = true
	f.mu.Unlock()
}

func (f *FakeTrigger) Stop() context.Context {
	f.mu.Lock()
	f.Stopped = true
	f.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// Len is the number of live registrations.
func (f *FakeTrigger) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Specs returns the expressions currently registered.
func (f *FakeTrigger) Specs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	specs := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		specs = append(specs, e.spec)
	}
	return specs
}

// Advance fires, synchronously and in registration order, every entry whose
// schedule activates in (from, to]. It returns the number of callbacks run.
func (f *FakeTrigger) Advance(from, to time.Time) int {
	f.mu.Lock()
	var due []func()
	for id := cron.EntryID(1); id <= f.next; id++ {
		e, ok := f.entries[id]
		if !ok {
			continue
		}
		for t := e.schedule.Next(from); !t.After(to) && !t.IsZero(); t = e.schedule.Next(t) {
			due = append(due, e.cmd)
		}
	}
	f.mu.Unlock()

	for _, cmd := range due {
		cmd()
	}
	return len(due)
}

// FireSpec runs every entry registered with exactly spec.
func (f *FakeTrigger) FireSpec(spec string) int {
	f.mu.Lock()
	var due []func()
	for id := cron.EntryID(1); id <= f.next; id++ {
		if e, ok := f.entries[id]; ok && e.spec == spec {
			due = append(due, e.cmd)
		}
	}
	f.mu.Unlock()

	for _, cmd := range due {
		cmd()
	}
	return len(due)
}

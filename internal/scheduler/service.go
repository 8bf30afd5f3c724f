package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "woonbot/pkg/logx"
)

type Job func(ctx context.Context) error

// Entry describes a registered trigger.
type Entry struct {
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Service struct {
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	started bool
	entries map[string]registered
}

type registered struct {
	id   cron.EntryID
	spec string
}

// New creates a stopped scheduler evaluating specs in tz ("" = local).
func New(tz string, log logx.Logger) (*Service, error) {
	loc := time.Local
	if tz = strings.TrimSpace(tz); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
		loc = l
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	clog := cronLogger{log: log}
	// SecondOptional accepts both 5- and 6-field specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		log:    log,
		loc:    loc,
		parser: parser,
		c: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(parser),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		ctx:     context.Background(),
		entries: map[string]registered{},
	}, nil
}

func (s *Service) Location() *time.Location { return s.loc }

// Start begins firing triggers. Job contexts derive from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx = ctx
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// Stop stops firing and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; jobs still running")
	}
}

// AddSchedule parses schedule (see ParseSchedule) and registers it.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecInterval {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

// AddCron registers a cron trigger, replacing any trigger with the same name.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	return s.add(name, spec, sched, timeout, job)
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) error {
	if every <= 0 {
		return errors.New("interval must be > 0")
	}
	return s.add(name, "@every "+every.String(), cron.Every(every), timeout, job)
}

// AddDaily fires every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) add(name, spec string, sched cron.Schedule, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[name]; ok {
		s.c.Remove(old.id)
	}
	id := s.c.Schedule(sched, cron.FuncJob(func() { s.run(name, timeout, job) }))
	s.entries[name] = registered{id: id, spec: spec}
	s.log.Debug("schedule registered",
		logx.String("name", name),
		logx.String("spec", spec),
		logx.Time("next", sched.Next(time.Now().In(s.loc))),
	)
	return nil
}

func (s *Service) run(name string, timeout time.Duration, job Job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := job(ctx)
	fields := []logx.Field{logx.String("name", name), logx.Duration("took", time.Since(start))}
	if err != nil {
		s.log.Warn("scheduled job failed", append(fields, logx.Err(err))...)
		return
	}
	s.log.Debug("scheduled job done", fields...)
}

// Remove unregisters name. It reports whether a trigger was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.entries[strings.TrimSpace(name)]
	if !ok {
		return false
	}
	s.c.Remove(r.id)
	delete(s.entries, strings.TrimSpace(name))
	return true
}

// Entries lists registered triggers sorted by name. Next is zero until
// Start.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, r := range s.entries {
		e := s.c.Entry(r.id)
		out = append(out, Entry{Name: name, Spec: r.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"devops-sentinel/internal/domain"
	"devops-sentinel/internal/infra/config"
)

// Sweeper injects synthetic operator requests on a schedule, e.g. a
// periodic "check the health of all environments" sweep. Each sweep runs
// through the Orchestrator like any inbound request, under its own
// session so sweep history never mixes with operator sessions.
type Sweeper struct {
	orchestrator *Orchestrator
	bus          domain.EventBus
	logger       *slog.Logger
	cron         *cron.Cron
}

func NewSweeper(orchestrator *Orchestrator, bus domain.EventBus, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		orchestrator: orchestrator,
		bus:          bus,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Add registers one sweep. The schedule is a five-field cron expression,
// a descriptor like "@hourly", or a plain duration like "15m".
func (s *Sweeper) Add(cfg config.SweepConfig) error {
	schedule, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return domain.NewDomainError("Sweeper.Add", domain.ErrConfigLoad, fmt.Sprintf("sweep %q: %v", cfg.Name, err))
	}

	session := cfg.Session
	if session == "" {
		session = "sweep"
	}
	name, text := cfg.Name, cfg.Text

	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(name, session, text)
	}))
	return nil
}

func (s *Sweeper) fire(name, session, text string) {
	ctx := context.Background()
	s.bus.Publish(ctx, domain.Event{
		Type:      domain.EventSweepFired,
		SessionID: session,
		At:        time.Now(),
		Data:      map[string]any{"sweep": name},
	})
	s.logger.Info("sweep fired", "sweep", name, "session", session)

	resp, err := s.orchestrator.Handle(ctx, session, text, map[string]string{"sweep": name})
	if err != nil {
		s.logger.Error("sweep failed",
			"sweep", name,
			"error_code", string(domain.ErrorCodeOf(err)),
			"error", err,
		)
		return
	}
	s.logger.Info("sweep completed",
		"sweep", name,
		"overall_status", string(resp.OverallStatus),
	)
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for in-flight sweeps to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// parseSchedule accepts a cron expression or descriptor first, then a
// plain duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("interval must be positive: %q", schedule)
	}
	return cron.Every(dur), nil
}

// Package schedule fires the daily campaign triggers. The scheduler itself
// never scans or delivers anything; it only publishes trigger messages that
// the worker picks up, so multiple scheduler replicas stay safe.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	mqcontracts "notifyhub/contracts/mq"
	"notifyhub/pkg/trace"
)

const registryKey = "sched:triggers"

// Trigger is one recurring daily firing. FireAt is "HH:MM" in UTC.
type Trigger struct {
	ID      string `json:"id"`
	Trigger string `json:"trigger"`
	FireAt  string `json:"fire_at"`
}

// DefaultTriggers are the five daily firings, staggered so the scans do not
// land on the database at the same instant.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{ID: mqcontracts.TriggerMFAEnablement, Trigger: mqcontracts.TriggerMFAEnablement, FireAt: "02:00"},
		{ID: mqcontracts.TriggerPhoneVerification, Trigger: mqcontracts.TriggerPhoneVerification, FireAt: "02:10"},
		{ID: mqcontracts.TriggerTrialExpiration, Trigger: mqcontracts.TriggerTrialExpiration, FireAt: "02:20"},
		{ID: mqcontracts.TriggerTrialDowngrade, Trigger: mqcontracts.TriggerTrialDowngrade, FireAt: "02:30"},
		{ID: mqcontracts.TriggerTenantDeletion, Trigger: mqcontracts.TriggerTenantDeletion, FireAt: "02:40"},
	}
}

// FireGuard decides whether this process gets to fire a trigger for a given
// day. Exactly one caller per (trigger, day) wins across all replicas.
type FireGuard interface {
	TryAcquire(ctx context.Context, triggerID, day string) bool
}

// RedisFireGuard backs the guard with a SetNX key per trigger and day.
type RedisFireGuard struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisFireGuard(rdb *redis.Client, logger *zap.Logger) *RedisFireGuard {
	return &RedisFireGuard{rdb: rdb, logger: logger}
}

// TryAcquire fails closed: if redis is unreachable nothing fires, which a
// later tick or the manual trigger endpoint can make up for. Firing twice is
// the worse failure mode here.
func (g *RedisFireGuard) TryAcquire(ctx context.Context, triggerID, day string) bool {
	key := fmt.Sprintf("sched:fire:%s:%s", triggerID, day)
	ok, err := g.rdb.SetNX(ctx, key, 1, 48*time.Hour).Result()
	if err != nil {
		g.logger.Error("Fire guard unavailable, holding trigger",
			zap.String("trigger_id", triggerID),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// JobPublisher publishes trigger messages to the worker queue.
type JobPublisher interface {
	Publish(routingKey, messageID string, payload any) error
}

type Scheduler struct {
	rdb       *redis.Client
	guard     FireGuard
	publisher JobPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func New(rdb *redis.Client, guard FireGuard, publisher JobPublisher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		rdb:       rdb,
		guard:     guard,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterTriggers replaces the recurring trigger registry. Safe to call on
// every startup; re-registering is an upsert, not a duplicate.
func (s *Scheduler) RegisterTriggers(ctx context.Context, triggers []Trigger) error {
	fields := make(map[string]any, len(triggers))
	for _, t := range triggers {
		body, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trigger %s: %w", t.ID, err)
		}
		fields[t.ID] = body
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, registryKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, registryKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write trigger registry: %w", err)
	}

	s.logger.Info("Recurring triggers registered", zap.Int("count", len(triggers)))
	return nil
}

// ListRecurring returns the registered recurring triggers.
func (s *Scheduler) ListRecurring(ctx context.Context) ([]Trigger, error) {
	raw, err := s.rdb.HGetAll(ctx, registryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read trigger registry: %w", err)
	}

	triggers := make([]Trigger, 0, len(raw))
	for id, body := range raw {
		var t Trigger
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			s.logger.Warn("Skipping malformed trigger entry", zap.String("trigger_id", id))
			continue
		}
		triggers = append(triggers, t)
	}
	return triggers, nil
}

// RemoveRecurring unregisters one trigger.
func (s *Scheduler) RemoveRecurring(ctx context.Context, id string) error {
	return s.rdb.HDel(ctx, registryKey, id).Err()
}

// Run ticks once a minute and fires every registered trigger whose HH:MM
// matches the current UTC minute. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.logger.Info("Scheduler started")
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates all recurring triggers against the current minute.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	minute := now.Format("15:04")
	day := now.Format("2006-01-02")

	triggers, err := s.ListRecurring(ctx)
	if err != nil {
		s.logger.Error("Failed to load trigger registry", zap.Error(err))
		return
	}

	s.fireDue(ctx, triggers, minute, day)
}

func (s *Scheduler) fireDue(ctx context.Context, triggers []Trigger, minute, day string) {
	for _, t := range triggers {
		if t.FireAt != minute {
			continue
		}
		if !s.guard.TryAcquire(ctx, t.ID, day) {
			continue
		}
		s.fire(ctx, t, day, false)
	}
}

// TriggerNow fires one trigger immediately, bypassing the schedule and the
// daily fire guard. Returns the job id it published.
func (s *Scheduler) TriggerNow(ctx context.Context, triggerName string) (string, error) {
	t := Trigger{ID: triggerName, Trigger: triggerName}
	jobID := fmt.Sprintf("manual:%s:%s", triggerName, uuid.NewString())
	if err := s.publish(ctx, t, jobID, true); err != nil {
		return "", err
	}
	return jobID, nil
}

func (s *Scheduler) fire(ctx context.Context, t Trigger, day string, manual bool) {
	jobID := fmt.Sprintf("%s:%s", t.ID, day)
	if err := s.publish(ctx, t, jobID, manual); err != nil {
		s.logger.Error("Failed to publish trigger",
			zap.String("trigger_id", t.ID),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) publish(ctx context.Context, t Trigger, jobID string, manual bool) error {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.Generate()
	}

	payload := mqcontracts.CampaignScanPayload{
		JobID:    jobID,
		Campaign: t.Trigger,
		Manual:   manual,
		FiredAt:  s.now().UTC(),
		TraceID:  traceID,
	}
	if err := s.publisher.Publish(mqcontracts.RoutingKeyCampaignScan, jobID, payload); err != nil {
		return err
	}

	s.logger.Info("Trigger fired",
		zap.String("trigger_id", t.ID),
		zap.String("job_id", jobID),
		zap.Bool("manual", manual),
		zap.String("trace_id", traceID),
	)
	return nil
}

// SetClock overrides the scheduler clock, for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

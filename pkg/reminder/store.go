// Package reminder stores scheduled reminders in Redis. Reminders live in a
// sorted set scored by their fire time, so draining due reminders is a single
// range query.
package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/dukex/stepflow/pkg/actions"
)

const remindersKey = "stepflow:reminders"

// Store implements actions.ReminderScheduler on top of Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewStore connects to Redis at the given address. An empty address falls
// back to localhost.
func NewStore(ctx context.Context, logger *slog.Logger, addr string) (*Store, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Store{
		client: client,
		logger: logger.With("module", "reminder"),
	}, nil
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client redis.UniversalClient, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With("module", "reminder"),
	}
}

// Schedule adds the reminder to the sorted set, scored by its fire time.
func (s *Store) Schedule(ctx context.Context, reminder actions.Reminder) error {
	payload, err := json.Marshal(reminder)
	if err != nil {
		return err
	}

	err = s.client.ZAdd(ctx, remindersKey, redis.Z{
		Score:  float64(reminder.FireAt.Unix()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule reminder: %w", err)
	}

	s.logger.DebugContext(ctx, "Reminder scheduled",
		"instance_id", reminder.InstanceID,
		"step_code", reminder.StepCode,
		"fire_at", reminder.FireAt)

	return nil
}

// Due removes and returns every reminder whose fire time is at or before
// now. Reminders that fail to decode are dropped with a log line.
func (s *Store) Due(ctx context.Context, now time.Time) ([]actions.Reminder, error) {
	maxScore := strconv.FormatInt(now.Unix(), 10)

	members, err := s.client.ZRangeByScore(ctx, remindersKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}

	if len(members) == 0 {
		return nil, nil
	}

	if err := s.client.ZRemRangeByScore(ctx, remindersKey, "-inf", maxScore).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove due reminders: %w", err)
	}

	reminders := make([]actions.Reminder, 0, len(members))

	for _, member := range members {
		var reminder actions.Reminder
		if err := json.Unmarshal([]byte(member), &reminder); err != nil {
			s.logger.ErrorContext(ctx, "Dropping undecodable reminder", "error", err)

			continue
		}

		reminders = append(reminders, reminder)
	}

	return reminders, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

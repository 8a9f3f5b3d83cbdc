package common

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tripbuilder/crmsync/internal/constants"
	"tripbuilder/crmsync/internal/logging"
)

// Push operations carried by PushTask
const (
	PushOpCreate = "create"
	PushOpUpdate = "update"
	PushOpDelete = "delete"
)

// PushTask names a local row whose push did not complete interactively.
// The worker reloads the row, so the task carries no field values.
type PushTask struct {
	Kind       constants.ResourceKind `json:"kind"`
	Op         string                 `json:"op"`
	LocalID    string                 `json:"local_id"`
	Reason     string                 `json:"reason,omitempty"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// QueuedPush is a task read from the stream with its message id.
type QueuedPush struct {
	MessageID string
	Task      PushTask
}

// PushQueueService is the pending-push queue on a Redis Stream
type PushQueueService struct {
	client *redis.Client
	stream string
	group  string
}

func NewPushQueueService(client *redis.Client) *PushQueueService {
	return &PushQueueService{
		client: client,
		stream: constants.PushQueueStream,
		group:  constants.PushQueueGroup,
	}
}

func encodeTask(task PushTask) (string, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("failed to marshal push task: %w", err)
	}
	return string(data), nil
}

func decodeTask(msg redis.XMessage) (PushTask, error) {
	var task PushTask
	data, ok := msg.Values["data"].(string)
	if !ok {
		return task, fmt.Errorf("invalid message %s: data field missing", msg.ID)
	}
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return task, fmt.Errorf("failed to unmarshal push task %s: %w", msg.ID, err)
	}
	return task, nil
}

// Enqueue adds a task to the stream
// XADD stream * data <json>
func (s *PushQueueService) Enqueue(ctx context.Context, task PushTask) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	data, err := encodeTask(task)
	if err != nil {
		return err
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"data": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	return nil
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (s *PushQueueService) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// DequeueBatch reads up to count new tasks, blocking at most block.
// Undecodable messages are acked and dropped.
func (s *PushQueueService) DequeueBatch(ctx context.Context, consumer string, count int64, block time.Duration) ([]QueuedPush, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []QueuedPush
	for _, st := range streams {
		out = append(out, s.decodeMessages(ctx, st.Messages)...)
	}
	return out, nil
}

// ClaimStale takes over tasks another consumer read but never acked.
func (s *PushQueueService) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int64) ([]QueuedPush, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim stale messages: %w", err)
	}
	return s.decodeMessages(ctx, msgs), nil
}

func (s *PushQueueService) decodeMessages(ctx context.Context, msgs []redis.XMessage) []QueuedPush {
	out := make([]QueuedPush, 0, len(msgs))
	for _, msg := range msgs {
		task, err := decodeTask(msg)
		if err != nil {
			logging.Warn("Dropping malformed push task", "message_id", msg.ID, "error", err)
			_ = s.Ack(ctx, msg.ID)
			continue
		}
		out = append(out, QueuedPush{MessageID: msg.ID, Task: task})
	}
	return out
}

// Ack acknowledges processed messages
func (s *PushQueueService) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return s.client.XAck(ctx, s.stream, s.group, messageIDs...).Err()
}

// Length returns the number of entries in the stream
func (s *PushQueueService) Length(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return n, nil
}

// Trim keeps only the most recent maxLen entries
func (s *PushQueueService) Trim(ctx context.Context, maxLen int64) error {
	return s.client.XTrimMaxLen(ctx, s.stream, maxLen).Err()
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

const (
	BatchQueueName    = "uniframe:batch"
	RealtimeQueueName = "uniframe:realtime"

	// stop flags expire so a stale stop cannot hit a later run of the same task
	stopFlagTTL = 30 * time.Second
)

// QueueName maps a task type to its work queue.
func QueueName(taskType models.TaskType) string {
	if taskType == models.TaskTypeRealtime {
		return RealtimeQueueName
	}
	return BatchQueueName
}

func activeKey(taskType models.TaskType) string {
	return fmt.Sprintf("uniframe:active:%s", taskType)
}

func stopFlagKey(taskID, ownerID int64) string {
	return models.ResourcePrefix(taskID, ownerID) + ":should_stop"
}

// RedisClient implements Client using Redis
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis queue client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &RedisClient{client: client}, nil
}

// Enqueue pushes a launch request onto the per-type queue
func (r *RedisClient) Enqueue(ctx context.Context, message JobMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, QueueName(message.TaskType), data).Err()
}

// Consume starts listening for launch requests of one task type and processes
// them with the handler. One client can only be consuming once.
func (r *RedisClient) Consume(ctx context.Context, taskType models.TaskType, handler func(JobMessage)) error {
	queueName := QueueName(taskType)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := r.getNewMessage(ctx, queueName)
			if err != nil {
				log.Error().
					Err(err).
					Str("queue", queueName).
					Msg("Error encountered when fetching message from queue")
				continue
			}
			if message == nil {
				continue
			}

			if err := processMessage(handler, *message); err != nil {
				log.Error().
					Err(err).
					Int64("task_id", message.TaskID).
					Msg("Error encountered when processing message")
			}
		}
	}
}

func (r *RedisClient) getNewMessage(ctx context.Context, queueName string) (*JobMessage, error) {
	result, err := r.client.BLPop(ctx, 1*time.Second, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No message available
			return nil, nil
		}
		return nil, fmt.Errorf("BLPOP from redis queue went bad. %w", err)
	}

	// Invalid message, this shouldn't usually happen
	if len(result) < 2 {
		return nil, nil
	}

	messageData := []byte(result[1])
	var message JobMessage
	err = json.Unmarshal(messageData, &message)
	if err != nil {
		return nil, fmt.Errorf("could not parse message into JobMessage. %w", err)
	}
	return &message, nil
}

func processMessage(handler func(JobMessage), message JobMessage) (err error) {
	defer func() {
		if rcv := recover(); rcv != nil {
			// Log the panic
			log.Error().Interface("panic", rcv).Int64("task_id", message.TaskID).Msg("Handler panicked")

			err = fmt.Errorf("handler panicked: %v", rcv)
		}
	}()

	handler(message)
	return nil
}

func (r *RedisClient) MarkWorkerActive(ctx context.Context, taskType models.TaskType, workerID string) error {
	return r.client.Set(ctx, activeKey(taskType), workerID, 0).Err()
}

func (r *RedisClient) ClearWorkerActive(ctx context.Context, taskType models.TaskType) error {
	return r.client.Del(ctx, activeKey(taskType)).Err()
}

func (r *RedisClient) HasActiveWorker(ctx context.Context, taskType models.TaskType) (bool, error) {
	n, err := r.client.Exists(ctx, activeKey(taskType)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisClient) PostStopFlag(ctx context.Context, taskID, ownerID int64) error {
	return r.client.Set(ctx, stopFlagKey(taskID, ownerID), "1", stopFlagTTL).Err()
}

func (r *RedisClient) PublishStop(ctx context.Context, taskID, ownerID int64) error {
	return r.client.Publish(ctx, models.StopChannelName(taskID, ownerID), "1").Err()
}

// StopSignalFor returns the pub/sub stop source in the container topology and
// the flag-key stop source in the queue topology.
func (r *RedisClient) StopSignalFor(taskID, ownerID int64, pubsub bool) StopSignal {
	if pubsub {
		sub := r.client.Subscribe(context.Background(), models.StopChannelName(taskID, ownerID))
		return &pubsubStopSignal{sub: sub}
	}
	return &flagStopSignal{client: r.client, key: stopFlagKey(taskID, ownerID)}
}

// Close terminates the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// flagStopSignal polls the short-lived should_stop key (queue topology).
type flagStopSignal struct {
	client *redis.Client
	key    string
}

func (s *flagStopSignal) Pending(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (s *flagStopSignal) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

func (s *flagStopSignal) Close() error { return nil }

// pubsubStopSignal drains the task's stop channel (container topology).
type pubsubStopSignal struct {
	sub *redis.PubSub
}

func (s *pubsubStopSignal) Pending(_ context.Context) (bool, error) {
	select {
	case msg, ok := <-s.sub.Channel():
		if !ok {
			return false, errors.New("stop channel closed")
		}
		return msg.Payload == "1", nil
	default:
		return false, nil
	}
}

// Clear is a no-op: receiving the pub/sub message already consumed it.
func (s *pubsubStopSignal) Clear(_ context.Context) error { return nil }

func (s *pubsubStopSignal) Close() error { return s.sub.Close() }

package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cellarhub/server/internal/ids"
)

const (
	TaskCleanup      = "cleanup"
	TaskSharePreview = "share_preview"
)

// Task is one unit of background work carried by the stream.
type Task struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

func (t Task) values() map[string]any {
	values := map[string]any{
		"id":   t.ID,
		"type": t.Type,
	}
	if t.Token != "" {
		values["token"] = t.Token
	}
	return values
}

// DecodeTask rebuilds a Task from stream message fields.
func DecodeTask(values map[string]interface{}) (Task, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

func (p *Producer) Enqueue(ctx context.Context, task Task) error {
	if task.ID == "" {
		task.ID = ids.New()
	}
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: task.values(),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}
	return nil
}

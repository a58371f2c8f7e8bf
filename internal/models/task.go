package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
)

// TaskType distinguishes a one-shot batch run from a resident realtime worker.
type TaskType string

const (
	TaskTypeBatch    TaskType = "BATCH"
	TaskTypeRealtime TaskType = "REALTIME"
)

// ResourceTier is a named resource-size class mapping to CPU/memory requests.
type ResourceTier string

const (
	TierSmall  ResourceTier = "Small"
	TierMedium ResourceTier = "Medium"
	TierLarge  ResourceTier = "Large"
)

// DatasetConfig points a task at one tabular dataset and the column searched in it.
type DatasetConfig struct {
	DatasetID int64  `json:"dataset_id"`
	SearchKey string `json:"search_key"`
}

// TTLPolicy bounds the wall-clock lifetime of a worker.
type TTLPolicy struct {
	Enabled bool   `json:"enabled"`
	TTL     string `json:"ttl"` // Go duration string, e.g. "30m"
}

// Duration parses the policy TTL. Zero when the policy is disabled.
func (p TTLPolicy) Duration() (time.Duration, error) {
	if !p.Enabled {
		return 0, nil
	}
	d, err := time.ParseDuration(p.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL %q: %w", p.TTL, err)
	}
	return d, nil
}

// TaskConfig is the JSONB payload on the task row holding everything the
// matching engine and the executor need.
type TaskConfig struct {
	GroundTruth DatasetConfig   `json:"gt_dataset_config"`
	ToMatch     DatasetConfig   `json:"nm_dataset_config"` // batch only
	Tier        ResourceTier    `json:"resource_tier"`
	TTLPolicy   TTLPolicy       `json:"running_parameter"`
	Search      SearchOption    `json:"search_option"`
	Algorithm   AlgorithmOption `json:"algorithm_option"`

	// ResultKey is the artifact key of the latest batch result, written back
	// by the worker after a successful run.
	ResultKey string `json:"matching_result,omitempty"`
}

// Task is a model representing the `nm.task` table.
type Task struct {
	ID         int64      `db:"id" json:"id"`
	OwnerID    int64      `db:"owner_id" json:"owner_id"`
	Name       string     `db:"name" json:"name"`
	Type       TaskType   `db:"type" json:"type"`
	Status     TaskStatus `db:"status" json:"status"`
	ConfigJSON []byte     `db:"config" json:"-"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt  null.Time  `db:"started_at" json:"started_at"`
	FinishedAt null.Time  `db:"finished_at" json:"finished_at"`

	// Config is decoded from ConfigJSON by the store layer.
	Config TaskConfig `db:"-" json:"config"`
}

// DecodeConfig populates Config from the raw JSONB column.
func (t *Task) DecodeConfig() error {
	if len(t.ConfigJSON) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.ConfigJSON, &t.Config); err != nil {
		return fmt.Errorf("decode task %d config: %w", t.ID, err)
	}
	return nil
}

// EncodeConfig serializes Config back onto ConfigJSON.
func (t *Task) EncodeConfig() error {
	raw, err := json.Marshal(t.Config)
	if err != nil {
		return fmt.Errorf("encode task %d config: %w", t.ID, err)
	}
	t.ConfigJSON = raw
	return nil
}

// TaskRunRecord is one row per physical worker launch of a task, from the
// `nm.task_run` table. WorkerID is the pod name in the container topology or
// a subprocess marker in the queue topology.
type TaskRunRecord struct {
	ID         int64     `db:"id" json:"id"`
	OwnerID    int64     `db:"owner_id" json:"owner_id"`
	TaskID     int64     `db:"task_id" json:"task_id"`
	WorkerID   string    `db:"worker_id" json:"worker_id"`
	Status     RunStatus `db:"status" json:"status"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt null.Time `db:"finished_at" json:"finished_at"`
}

// ResourcePrefix is the deterministic name shared by the pod, the companion
// service and the stop pub/sub channel of one (task, owner) pair.
func ResourcePrefix(taskID, ownerID int64) string {
	return fmt.Sprintf("nm-%d-%d", ownerID, taskID)
}

// StopChannelName is the pub/sub channel the supervisor listens on in the
// container topology.
func StopChannelName(taskID, ownerID int64) string {
	return ResourcePrefix(taskID, ownerID) + "-channel"
}

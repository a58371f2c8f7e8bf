package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/executor"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// Orchestrator implements the task start/stop/match operations behind the
// HTTP handlers. The API never writes worker-observed statuses itself: it may
// request PREPARING (start), roll a failed start back to INIT, and post stop
// signals. Everything else is the supervisor's and the housekeeper's job.
type Orchestrator struct {
	Store   store.TaskStore
	Backend executor.Backend
	Conf    *config.UFConfig

	// HTTPClient reaches the realtime worker endpoint. Falls back to a
	// short-timeout default when nil.
	HTTPClient *http.Client
}

// MatchResponse is the payload the realtime worker answers with and the
// orchestrator forwards.
type MatchResponse struct {
	Columns []string            `json:"columns"`
	Rows    [][]string          `json:"rows"`
	Search  models.SearchOption `json:"search_option"`
}

// StartTask validates ownership and availability, then hands the task to the
// execution backend. It returns as soon as the launch is accepted; the worker
// reports its own progress through the lifecycle from there.
func (o *Orchestrator) StartTask(ctx context.Context, taskID, userID int64) error {
	task, err := o.ownedTask(ctx, taskID, userID)
	if err != nil {
		return err
	}

	if err := o.Store.SetTaskStatus(ctx, taskID, models.StatusPreparing); err != nil {
		return err
	}

	if err := o.Backend.IsAvailable(ctx, task); err != nil {
		o.rollbackStart(ctx, taskID)
		return err
	}

	handle, err := o.Backend.Launch(ctx, task)
	if err != nil {
		o.rollbackStart(ctx, taskID)
		return err
	}

	// the Kubernetes backend names the worker up front; the local consumer
	// creates its own run record when it picks the message up
	if handle.WorkerID != "" {
		run := &models.TaskRunRecord{
			OwnerID:  task.OwnerID,
			TaskID:   task.ID,
			WorkerID: handle.WorkerID,
		}
		if err := o.Store.CreateRunRecord(ctx, run); err != nil {
			return err
		}
	}

	log.Info().
		Int64("task_id", taskID).
		Int64("owner_id", userID).
		Str("worker_id", handle.WorkerID).
		Msg("Task start accepted")
	return nil
}

// StopTask posts the stop signal for a running task. Fire and forget: the
// supervisor picks the signal up on its next poll.
func (o *Orchestrator) StopTask(ctx context.Context, taskID, userID int64) error {
	task, err := o.ownedTask(ctx, taskID, userID)
	if err != nil {
		return err
	}
	return o.Backend.SignalStop(ctx, task)
}

// DeleteTask soft-deletes a task after tearing down what its launches left
// behind: every run record's worker resources are removed (best effort) and
// runs still marked Running are closed as Deleted. The row itself stays for
// run history.
func (o *Orchestrator) DeleteTask(ctx context.Context, taskID, userID int64) error {
	task, err := o.ownedTask(ctx, taskID, userID)
	if err != nil {
		return err
	}

	runs, err := o.Store.ListTaskRuns(ctx, taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, run := range runs {
		if run.WorkerID != "" {
			o.Backend.DeleteWorkerResources(ctx, task, run.WorkerID)
		}
		if run.Status != models.RunStatusRunning {
			continue
		}
		if err := o.Store.FinishRun(ctx, run.ID, models.RunStatusDeleted, now); err != nil {
			log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not mark run record deleted")
		}
	}

	return o.Store.DeactivateTask(ctx, taskID)
}

// Match forwards a realtime query to the task's worker endpoint.
func (o *Orchestrator) Match(ctx context.Context, taskID, userID int64, queries []string) (*MatchResponse, error) {
	task, err := o.ownedTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	if task.Type != models.TaskTypeRealtime {
		return nil, taskerr.New(taskerr.KindTaskTypeMismatch,
			"task %d is %s, matching queries need a REALTIME task", taskID, task.Type)
	}

	endpoint := o.matchEndpoint(task)
	q := url.Values{}
	for _, name := range queries {
		q.Add("q", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.httpClient().Do(req)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindWorkerNotAvailable, err,
			"realtime worker for task %d is not reachable", taskID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, taskerr.New(taskerr.KindWorkerNotAvailable,
			"realtime worker for task %d answered %d", taskID, resp.StatusCode)
	}

	var out MatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ownedTask loads a task and hides other owners' tasks behind not-found.
func (o *Orchestrator) ownedTask(ctx context.Context, taskID, userID int64) (*models.Task, error) {
	task, err := o.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != userID {
		return nil, taskerr.New(taskerr.KindTaskNotFound, "task %d does not exist", taskID)
	}
	return task, nil
}

// rollbackStart returns a task that never launched to INIT so the user can
// retry. The rollback itself is best effort.
func (o *Orchestrator) rollbackStart(ctx context.Context, taskID int64) {
	if err := o.Store.SetTaskStatus(ctx, taskID, models.StatusInit); err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Msg("Could not roll task back to init")
	}
}

func (o *Orchestrator) matchEndpoint(task *models.Task) string {
	if o.Conf.Compute.Topology == config.TopologyKubernetes {
		prefix := models.ResourcePrefix(task.ID, task.OwnerID)
		return fmt.Sprintf("http://%s.%s.svc/api/v1/nm-realtime", prefix, o.Conf.Compute.Namespace)
	}
	return fmt.Sprintf("http://localhost:%d/api/v1/nm-realtime", o.Conf.Compute.RealtimePort)
}

func (o *Orchestrator) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

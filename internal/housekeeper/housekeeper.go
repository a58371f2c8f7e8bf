// Package housekeeper reconciles run records against real cluster state. It
// exists for the window where a supervisor died with its pod: the task store
// then believes a worker is still running that the cluster no longer has.
package housekeeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/store"
)

// oomReason is the terminated-state reason the kubelet reports for a
// memory-killed container.
const oomReason = "OOMKilled"

type Housekeeper struct {
	Store     store.TaskStore
	Client    kubernetes.Interface
	Namespace string
}

// Start schedules the reconciliation on the given period (a Go duration
// string) and returns the running scheduler. Kubernetes topology only.
func (h *Housekeeper) Start(period string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc("@every "+period, func() {
		if err := h.ReconcileOnce(context.Background()); err != nil {
			log.Error().Err(err).Msg("Housekeeping pass failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	log.Info().Str("period", period).Msg("Housekeeper started")
	return c, nil
}

// ReconcileOnce runs one reconciliation pass over every run record still
// marked Running. Each observation is idempotent: the conditional terminal
// writes in the store make a re-observed condition a no-op.
func (h *Housekeeper) ReconcileOnce(ctx context.Context) error {
	runs, err := h.Store.ListRunningRuns(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		h.reconcileRun(ctx, run)
	}
	return nil
}

func (h *Housekeeper) reconcileRun(ctx context.Context, run models.TaskRunRecord) {
	pod, err := h.Client.CoreV1().Pods(h.Namespace).Get(ctx, run.WorkerID, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		// the pod is gone without its supervisor having written anything
		log.Info().
			Int64("run_id", run.ID).
			Int64("task_id", run.TaskID).
			Str("pod", run.WorkerID).
			Msg("Pod in db but not in cluster, closing run record")
		if err := h.Store.FinishRun(ctx, run.ID, models.RunStatusCompleted, time.Now().UTC()); err != nil {
			log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not close run record")
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("pod", run.WorkerID).Msg("Could not read pod status")
		return
	}

	// a pending pod (e.g. waiting for node autoscaling) has no container
	// status yet
	if len(pod.Status.ContainerStatuses) == 0 {
		return
	}

	state := pod.Status.ContainerStatuses[0].State
	if state.Terminated == nil || state.Terminated.Reason != oomReason {
		return
	}

	now := time.Now().UTC()
	log.Info().
		Int64("run_id", run.ID).
		Int64("task_id", run.TaskID).
		Str("pod", run.WorkerID).
		Msg("Worker was OOM killed, writing out-of-memory status")
	if err := h.Store.FinishRun(ctx, run.ID, models.RunStatusOOMKilled, now); err != nil {
		log.Error().Err(err).Int64("run_id", run.ID).Msg("Could not close run record")
		return
	}
	if err := h.Store.SetTaskStatus(ctx, run.TaskID, models.StatusOOMKilled); err != nil {
		log.Error().Err(err).Int64("task_id", run.TaskID).Msg("Could not update task status")
	}
}

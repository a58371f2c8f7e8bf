package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/models"
	"github.com/uniframe-io/uniframe-backend/internal/queue"
	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

// baseMemMiB is added on top of every tier's request: it covers the worker
// runtime itself before any dataset is loaded.
const baseMemMiB = 208

// largeCPUHeadroom is subtracted from the large tier's CPU request, leaving
// room for system daemons on the dedicated nodes.
const largeCPUHeadroom = 0.15

type tierResource struct {
	cpu    float64
	memMiB int64
}

var tierResources = map[models.ResourceTier]tierResource{
	models.TierSmall:  {cpu: 1, memMiB: 2048},
	models.TierMedium: {cpu: 2, memMiB: 4096},
	models.TierLarge:  {cpu: 4, memMiB: 8192},
}

// KubeBackend runs one pod per task, plus a companion Service for realtime
// tasks so their query endpoint is routable by the deterministic name.
type KubeBackend struct {
	client kubernetes.Interface
	queue  queue.Client
	conf   *config.UFConfig
}

func NewKubeBackend(client kubernetes.Interface, q queue.Client, conf *config.UFConfig) *KubeBackend {
	return &KubeBackend{client: client, queue: q, conf: conf}
}

// IsAvailable always succeeds: the cluster scheduler owns capacity decisions.
func (b *KubeBackend) IsAvailable(context.Context, *models.Task) error { return nil }

func (b *KubeBackend) Launch(ctx context.Context, task *models.Task) (*WorkerHandle, error) {
	prefix := models.ResourcePrefix(task.ID, task.OwnerID)
	podName := fmt.Sprintf("%s-%s", prefix, time.Now().UTC().Format("20060102-150405"))

	pod, err := b.buildPod(task, podName, prefix)
	if err != nil {
		return nil, err
	}
	_, err = tryRunR(maxLaunchRetries, func() (*corev1.Pod, error) {
		return b.client.CoreV1().Pods(b.conf.Compute.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	})
	if err != nil {
		recordLaunchFailure(task.Type, "kubernetes")
		return nil, taskerr.Wrap(taskerr.KindWorkerStart, err, "create pod %s", podName)
	}

	if task.Type == models.TaskTypeRealtime {
		svc := b.buildService(task, prefix)
		err := tryRun(maxLaunchRetries, func() error {
			_, err := b.client.CoreV1().Services(b.conf.Compute.Namespace).Create(ctx, svc, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				return nil
			}
			return err
		})
		if err != nil {
			// roll the pod back so a half-launched worker does not linger
			b.deletePod(ctx, podName)
			recordLaunchFailure(task.Type, "kubernetes")
			return nil, taskerr.Wrap(taskerr.KindWorkerStart, err, "create service %s", prefix)
		}
	}

	recordLaunch(task.Type, "kubernetes")
	log.Info().
		Int64("task_id", task.ID).
		Str("pod", podName).
		Str("type", string(task.Type)).
		Msg("Launched worker pod")
	return &WorkerHandle{WorkerID: podName}, nil
}

func (b *KubeBackend) SignalStop(ctx context.Context, task *models.Task) error {
	return b.queue.PublishStop(ctx, task.ID, task.OwnerID)
}

// DeleteWorkerResources removes the pod and, for realtime tasks, the
// companion service. Cleanup is best effort: missing resources are fine and
// other failures are logged, never returned, because the caller is already on
// a terminal path.
func (b *KubeBackend) DeleteWorkerResources(ctx context.Context, task *models.Task, podName string) {
	if podName != "" {
		b.deletePod(ctx, podName)
	}
	if task.Type != models.TaskTypeRealtime {
		return
	}
	prefix := models.ResourcePrefix(task.ID, task.OwnerID)
	err := b.client.CoreV1().Services(b.conf.Compute.Namespace).Delete(ctx, prefix, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.Warn().Err(err).Str("service", prefix).Msg("Could not delete worker service")
	}
}

func (b *KubeBackend) deletePod(ctx context.Context, podName string) {
	err := b.client.CoreV1().Pods(b.conf.Compute.Namespace).Delete(ctx, podName, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		log.Warn().Err(err).Str("pod", podName).Msg("Could not delete worker pod")
	}
}

func (b *KubeBackend) buildPod(task *models.Task, podName, prefix string) (*corev1.Pod, error) {
	tier := task.Config.Tier
	if tier == "" {
		tier = models.TierSmall
	}
	res, ok := tierResources[tier]
	if !ok {
		return nil, taskerr.New(taskerr.KindWorkerStart, "unknown resource tier %q", tier)
	}

	cpu := res.cpu
	if tier == models.TierLarge {
		cpu -= largeCPUHeadroom
	}
	requests := corev1.ResourceList{
		corev1.ResourceCPU:    *resource.NewMilliQuantity(int64(cpu*1000), resource.DecimalSI),
		corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", res.memMiB+baseMemMiB)),
	}

	args := append([]string{"run", "supervise",
		fmt.Sprintf("%d", task.ID), fmt.Sprintf("%d", task.OwnerID), "--", "uniframe"},
		WorkerArgs(task)...)

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: b.conf.Compute.Namespace,
			Labels:    map[string]string{"app": prefix},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:    "worker",
				Image:   b.conf.Compute.Image,
				Command: []string{"uniframe"},
				Args:    args,
				Env: []corev1.EnvVar{
					{Name: "TASK_ID", Value: fmt.Sprintf("%d", task.ID)},
					{Name: "OWNER_ID", Value: fmt.Sprintf("%d", task.OwnerID)},
					{Name: "POD_NAME", Value: podName},
					{Name: "UF_DATABASE_HOST", Value: b.conf.Database.Host},
					{Name: "UF_DATABASE_USER", Value: b.conf.Database.User},
					{Name: "UF_DATABASE_PASSWORD", Value: b.conf.Database.Password},
					{Name: "UF_DATABASE_NAME", Value: b.conf.Database.Name},
					{Name: "UF_QUEUE_HOST", Value: b.conf.Queue.Host},
					{Name: "UF_QUEUE_PASSWORD", Value: b.conf.Queue.Password},
				},
				Resources: corev1.ResourceRequirements{
					Requests: requests,
					Limits:   requests,
				},
			}},
		},
	}

	// large workers are pinned to the dedicated node pool
	if tier == models.TierLarge && b.conf.Compute.LargeNodePool != "" {
		pod.Spec.NodeSelector = map[string]string{"node-pool": b.conf.Compute.LargeNodePool}
	}
	return pod, nil
}

func (b *KubeBackend) buildService(task *models.Task, prefix string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      prefix,
			Namespace: b.conf.Compute.Namespace,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": prefix},
			Ports: []corev1.ServicePort{{
				Port:       80,
				TargetPort: intstr.FromInt32(int32(b.conf.Compute.RealtimePort)),
			}},
		},
	}
}

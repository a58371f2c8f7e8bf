package runcmd

import (
	"log"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/uniframe-io/uniframe-backend/internal/config"
	"github.com/uniframe-io/uniframe-backend/internal/database"
	"github.com/uniframe-io/uniframe-backend/internal/dataset"
	"github.com/uniframe-io/uniframe-backend/internal/queue"
)

var Command = &cobra.Command{
	Use:   "run",
	Short: "Run service",
	Long:  "Run service from a selected list of services",
}

func init() {
	Command.AddCommand(apiCmd)
	Command.AddCommand(workerCmd)
	Command.AddCommand(housekeeperCmd)
	Command.AddCommand(superviseCmd)
	Command.AddCommand(batchCmd)
	Command.AddCommand(realtimeCmd)
}

func mustDatabase(conf *config.UFConfig) *sqlx.DB {
	db, err := database.New(conf)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	return db
}

func mustQueue(conf *config.UFConfig) *queue.RedisClient {
	redis, err := queue.NewRedisClient(conf.Queue.Host, conf.Queue.Password, conf.Queue.DB)
	if err != nil {
		log.Fatalf("Could not connect to redis queue: %v", err)
	}
	return redis
}

func mustDatasets(conf *config.UFConfig) dataset.Store {
	if conf.Storage.Endpoint == "" {
		return &dataset.FSStore{Root: "data"}
	}
	ds, err := dataset.NewMinioStore(conf)
	if err != nil {
		log.Fatalf("Could not connect to object storage: %v", err)
	}
	return ds
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// mustKubeClient builds the cluster client: in-cluster credentials when
// running inside a pod, the local kubeconfig otherwise.
func mustKubeClient() kubernetes.Interface {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		cfg, err = clientcmd.BuildConfigFromFlags("", clientcmd.RecommendedHomeFile)
		if err != nil {
			log.Fatalf("Could not load kubernetes configuration: %v", err)
		}
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		log.Fatalf("Could not create kubernetes client: %v", err)
	}
	return client
}

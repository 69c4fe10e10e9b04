package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pyferris/pyferris/pkg/cluster"
)

var workerCoordinatorAddr string
var workerAdvertiseAddr string
var workerID string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Join a cluster as a worker node and send heartbeats",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerCoordinatorAddr, "coordinator", "127.0.0.1:7070", "coordinator TCP address to join")
	workerCmd.Flags().StringVar(&workerAdvertiseAddr, "advertise", "", "address this worker advertises to peers")
	workerCmd.Flags().StringVar(&workerID, "id", "", "node id (default: generated UUID)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := newLogger()
	if workerID == "" {
		workerID = uuid.NewString()
	}

	caps := cluster.DetectCapabilities()
	log.Info("worker: detected capabilities", "cpu_cores", caps.CPUCores, "memory_gb", caps.MemoryGB, "nvidia_gpus", caps.NvidiaGPU, "amd_gpus", caps.AMDGPU)

	client := cluster.NewClient(cfg.Cluster, log, workerID, workerAdvertiseAddr, caps)
	resp, err := client.Join(workerCoordinatorAddr)
	if err != nil {
		return err
	}
	log.Info("worker: joined cluster", "role", resp.Role, "peers", len(resp.Peers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("worker: leaving cluster")
	return client.Leave()
}

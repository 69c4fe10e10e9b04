package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pyferris/pyferris/pkg/cluster"
)

var coordinatorAddr string
var coordinatorHTTPAddr string

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the cluster coordinator: TCP membership server plus an HTTP status surface",
	RunE:  runCoordinator,
}

func init() {
	coordinatorCmd.Flags().StringVar(&coordinatorAddr, "addr", "", "TCP address for the cluster wire protocol (overrides config)")
	coordinatorCmd.Flags().StringVar(&coordinatorHTTPAddr, "http-addr", "0.0.0.0:8070", "HTTP address for the status/metrics surface")
}

func runCoordinator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if coordinatorAddr != "" {
		cfg.Cluster.CoordinatorAddress = coordinatorAddr
	}

	log := newLogger()
	coord := cluster.NewCoordinator(cfg.Cluster, log)
	if err := coord.Start(); err != nil {
		return err
	}
	defer coord.Stop()
	log.Info("coordinator: cluster membership server started", "addr", coord.Addr())

	router := newCoordinatorRouter(coord)
	srv := &http.Server{Addr: coordinatorHTTPAddr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("coordinator: http server failed", "error", err)
		}
	}()
	log.Info("coordinator: http status surface started", "addr", coordinatorHTTPAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("coordinator: shutting down")
	return nil
}

func newCoordinatorRouter(coord *cluster.Coordinator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	r.GET("/nodes", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"nodes": coord.Nodes()})
	})

	r.GET("/metrics", func(c *gin.Context) {
		nodes := coord.Nodes()
		active, degraded, failed := 0, 0, 0
		for _, n := range nodes {
			switch n.Status {
			case "active":
				active++
			case "degraded":
				degraded++
			case "failed":
				failed++
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"total_nodes":    len(nodes),
			"active_nodes":   active,
			"degraded_nodes": degraded,
			"failed_nodes":   failed,
		})
	})

	return r
}

// Command dqlited starts the core: a thread pool, a SQLite-backed
// registry, a static cluster view, the request gateway wiring the three
// together, and the two listeners internal/server exposes.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/just-now/dqlite/internal/cluster"
	"github.com/just-now/dqlite/internal/config"
	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/gateway"
	"github.com/just-now/dqlite/internal/pool"
	"github.com/just-now/dqlite/internal/server"
)

func main() {
	addr := flag.String("addr", ":8650", "address for the binary request protocol")
	statusAddr := flag.String("status-addr", ":8080", "address for the HTTP/1.0 status and metrics surface")
	clusterFile := flag.String("config", "", "optional YAML file with static cluster leader/servers")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg := config.Load()
	if *clusterFile != "" {
		cfg.ClusterConfigFile = *clusterFile
	}

	cl, err := loadCluster(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load cluster config")
	}

	reg := prometheus.NewRegistry()
	server.Collectors.MustRegister(reg)

	dbase.RegisterMemVFS("volatile")
	registry := dbase.NewRegistry(dbase.NewSQLiteEngine())

	p := pool.New(pool.Config{
		Workers:     cfg.PoolThreadpoolSize,
		Logger:      log,
		CPUAffinity: cfg.PoolWorkerCPUAffinity,
		Metrics:     server.Collectors,
	})
	defer p.Close()

	gw := gateway.New(registry, cl, p, log).WithCollectors(server.Collectors)
	srv := server.New(gw, reg, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		p.Close()
		os.Exit(0)
	}()

	go func() {
		log.Info().Str("addr", *statusAddr).Msg("status surface listening")
		if err := srv.ListenAndServeStatus(*statusAddr); err != nil {
			log.Fatal().Err(err).Msg("status listener failed")
		}
	}()

	log.Info().Str("addr", *addr).Int("workers", cfg.PoolThreadpoolSize).Msg("request protocol listening")
	if err := srv.ListenAndServe(*addr); err != nil {
		log.Fatal().Err(err).Msg("listen failed")
	}
}

func loadCluster(cfg config.Config) (cluster.Cluster, error) {
	if cfg.ClusterConfigFile != "" {
		return cluster.LoadStatic(cfg.ClusterConfigFile)
	}
	return cluster.NewStatic("127.0.0.1:8650", []string{"127.0.0.1:8650"}), nil
}

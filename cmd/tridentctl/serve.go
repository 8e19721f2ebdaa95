package main

import (
	"fmt"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/microsoft/trident/internal/metrics"
	"github.com/microsoft/trident/internal/rpc"
)

var (
	rpcListenAddr     string
	metricsListenAddr string
	metricsSinkPath   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Servicing gRPC service and the Prometheus metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := buildEngine()
		if err != nil {
			return err
		}
		defer closeFn()

		sink, err := metrics.OpenSink(metricsSinkPath)
		if err != nil {
			return fmt.Errorf("open metrics sink %s: %w", metricsSinkPath, err)
		}
		defer sink.Close()

		lis, err := net.Listen("tcp", rpcListenAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", rpcListenAddr, err)
		}

		gs := grpc.NewServer()
		rpc.RegisterServicingServer(gs, &rpc.Server{Engine: e, Sink: sink})

		go func() {
			http.Handle("/metrics", metrics.Handler())
			log.Infof("metrics endpoint listening on %s", metricsListenAddr)
			if err := http.ListenAndServe(metricsListenAddr, nil); err != nil {
				log.Errorf("metrics server exited: %v", err)
			}
		}()

		log.Infof("servicing gRPC service listening on %s", rpcListenAddr)
		return gs.Serve(lis)
	},
}

func init() {
	serveCmd.Flags().StringVar(&rpcListenAddr, "listen", ":50051", "Address the gRPC service listens on")
	serveCmd.Flags().StringVar(&metricsListenAddr, "metrics-listen", ":9090", "Address the Prometheus /metrics endpoint listens on")
	serveCmd.Flags().StringVar(&metricsSinkPath, "metrics-sink", metrics.DefaultPath, "Path to the JSON-lines phase-duration sink")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/mediarun/pipeline-runtime/pkg/config"
	"github.com/mediarun/pipeline-runtime/pkg/executor"
	"github.com/mediarun/pipeline-runtime/pkg/ipcchannel"
	"github.com/mediarun/pipeline-runtime/pkg/noderegistry"
	"github.com/mediarun/pipeline-runtime/pkg/pipeline"
	"github.com/mediarun/pipeline-runtime/pkg/rtctransport"
	"github.com/mediarun/pipeline-runtime/pkg/signaling"
)

func main() {
	fs := flag.NewFlagSet("runtime", flag.ExitOnError)
	envPath := fs.String("env", ".env", "path to a .env-style config file")
	level := fs.String("log-level", "info", "debug, info, warn, error")
	format := fs.String("log-format", "text", "text or json")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Pipeline runtime: WebRTC mesh + signaling + node graph executor\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logLevel, err := zerolog.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %v\n", err)
		os.Exit(1)
	}

	var writer io.Writer = os.Stdout
	if *format != "json" {
		writer = zerolog.NewConsoleWriter()
	}
	log := zerolog.New(writer).Level(logLevel).With().Timestamp().Logger()

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	log.Info().Str("channel_dir", cfg.ChannelDir).Str("interpreter", cfg.Interpreter).Msg("configuration loaded")

	if err := ipcchannel.GCAll(cfg.ChannelDir, time.Second, log); err != nil {
		log.Warn().Err(err).Msg("startup cleanup of stale channel files failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	registry := noderegistry.New()
	if err := noderegistry.RegisterBuiltins(registry); err != nil {
		log.Error().Err(err).Msg("failed to register builtin nodes")
		os.Exit(1)
	}

	execReg := executor.NewSharedRegistry(log.With().Str("component", "executor").Logger())
	defer execReg.ShutdownAll(ctx)

	runnerCfg := pipeline.DefaultRunnerConfig()
	runnerCfg.ChannelDir = cfg.ChannelDir
	runnerCfg.Interpreter = cfg.Interpreter
	runnerCfg.ImageCachePath = cfg.ImageCachePath
	runner := pipeline.NewRunner(registry, execReg, runnerCfg, log.With().Str("component", "pipeline").Logger())
	defer runner.Close()
	log.Info().Msg("pipeline runner initialized")

	transportCfg := rtctransport.DefaultTransportConfig()
	transport, err := rtctransport.NewTransport(transportCfg, log.With().Str("component", "transport").Logger())
	if err != nil {
		log.Error().Err(err).Msg("failed to construct transport")
		os.Exit(1)
	}
	transport.Start(ctx)
	defer transport.Shutdown()
	log.Info().Int("max_peers", transportCfg.MaxPeers).Msg("webrtc transport started")

	hub := signaling.NewHub(log.With().Str("component", "signaling_ws").Logger())

	mux := http.NewServeMux()
	mux.Handle("/signaling", hub)
	mux.HandleFunc("/pipelines/execute", pipelineHandler(runner))

	wsServer := &http.Server{Addr: cfg.SignalingWSAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.SignalingWSAddr).Msg("signaling websocket listening")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("signaling websocket server failed")
		}
	}()

	grpcLis, err := net.Listen("tcp", cfg.SignalingGRPCAddr)
	if err != nil {
		log.Error().Err(err).Msg("failed to bind signaling grpc listener")
		os.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	signaling.NewGRPCServer(grpcSrv)
	go func() {
		log.Info().Str("addr", cfg.SignalingGRPCAddr).Msg("signaling grpc listening")
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error().Err(err).Msg("signaling grpc server failed")
		}
	}()

	log.Info().Msg("runtime started")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = wsServer.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()

	log.Info().Msg("shutdown complete")
}

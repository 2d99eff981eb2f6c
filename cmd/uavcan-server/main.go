// Command uavcan-server bridges a UAVCAN v0 CAN bus (SLCAN serial
// adapter or Linux SocketCAN) to TCP observers, and optionally
// participates on the bus as a UAVCAN node of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/server"
	"github.com/kstaniek/uavcan-gateway/internal/stream"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, hub_init.go, metrics_logger.go, backend.go, uavcan_node.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("uavcan-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	sendFunc, cleanup, berr := initBackend(ctx, cfg, h, l, &wg)
	if berr != nil {
		l.Error("backend_init_error", "error", berr)
		return
	}

	_, uavcanCleanup := initUavcanNode(ctx, cfg, h, sendFunc, l, &wg)

	srv := server.NewServer(
		server.WithHub(h),
		server.WithCodec(&stream.Codec{}),
		server.WithSend(sendFunc),
		server.WithLogger(l),
		server.WithMaxClients(cfg.maxClients),
		server.WithHandshakeTimeout(cfg.handshakeTO),
		server.WithReadDeadline(cfg.clientReadTO),
	)
	srv.SetListenAddr(cfg.listenAddr)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	// Advertise via mDNS once the listener is ready.
	go advertiseMDNS(ctx, cfg, srv.Ready(), srv.Addr, l)

	// Ready when the listener is bound and the context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	cleanup()
	uavcanCleanup()
	wg.Wait()
}

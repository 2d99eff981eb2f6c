package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_uavcan-server._tcp"

// advertiseMDNS blocks until the observer listener is bound, then
// registers the gateway via mDNS for discovery by bus tooling. The
// advertisement carries the backend, node id and build in TXT records
// so a discovering client can pick a gateway without connecting first.
func advertiseMDNS(ctx context.Context, cfg *appConfig, ready <-chan struct{}, addrFn func() string, l *slog.Logger) {
	if !cfg.mdnsEnable {
		return
	}
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	port := listenPort(addrFn())
	cleanup, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
	go func() { <-ctx.Done(); cleanup() }()
}

// listenPort extracts the numeric port from a bound listen address
// (host:port or :port), 0 when it cannot be determined.
func listenPort(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			return pn
		}
	}
	return 0
}

// startMDNS registers the service and returns a cleanup function. It is
// safe to call even if disabled (no-op).
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("uavcan-server-%s", host)
	}
	meta := []string{
		"backend=" + cfg.backend,
		"node_id=" + strconv.Itoa(cfg.nodeID),
		"version=" + version,
		"commit=" + commit,
	}
	// Hardcoded service type; domain local.
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}

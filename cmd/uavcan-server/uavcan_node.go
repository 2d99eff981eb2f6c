package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/uavcan-gateway/internal/can"
	"github.com/kstaniek/uavcan-gateway/internal/hub"
	"github.com/kstaniek/uavcan-gateway/internal/metrics"
	"github.com/kstaniek/uavcan-gateway/internal/uavcan"
)

// initUavcanNode wires a uavcan.Node to the selected backend's send
// function and to a tap on the hub's frame stream, the same way a TCP
// observer taps the hub for the stream protocol. When cfg.nodeID is
// assigned (>= 0) it also starts a periodic NodeStatus broadcaster.
// The returned cleanup closes the hub tap client, which stops the tap
// goroutine; the NodeStatus broadcaster stops when ctx is done.
func initUavcanNode(ctx context.Context, cfg *appConfig, h *hub.Hub, send func(can.Frame) error, l *slog.Logger, wg *sync.WaitGroup) (*uavcan.Node, func()) {
	var nodeID *uint8
	if cfg.nodeID >= 0 {
		id := uint8(cfg.nodeID)
		nodeID = &id
	}

	node := uavcan.NewNode(nodeID, uavcan.NewBackendTransferInterface(send),
		uavcan.WithSessionCapacity(cfg.uavcanSessions),
		uavcan.WithOnError(func(err error) {
			metrics.IncError(uavcan.ErrorMetricLabel(err))
			l.Warn("uavcan_transfer_error", "error", err)
		}),
	)

	// Tap the hub like any observer, but only for extended-id frames;
	// UAVCAN never uses standard identifiers, so the filter spares the
	// node the raw 11-bit traffic a mixed bus may carry.
	client := hub.NewClient(cfg.hubBuffer, hub.Filter{ID: can.CAN_EFF_FLAG, Mask: can.CAN_EFF_FLAG})
	h.Add(client)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer h.Remove(client)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Closed:
				return
			case fr := <-client.Out:
				if uf, ok := uavcan.DecodeInbound(fr); ok {
					node.RxProcessFrame(uf)
				}
			}
		}
	}()

	cleanup := func() { client.Close() }

	if nodeID == nil {
		return node, cleanup
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		status := &uavcan.NodeStatus{Mode: uavcan.NodeModeOperational}
		start := time.Now()
		ticker := time.NewTicker(cfg.nodeStatusEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status.UptimeSec = uint32(time.Since(start).Seconds())
				if err := node.Broadcast(0, uavcan.NodeStatusDataTypeID, status); err != nil {
					metrics.IncError(uavcan.ErrorMetricLabel(err))
					l.Warn("node_status_broadcast_error", "error", err)
				}
			}
		}
	}()

	return node, cleanup
}

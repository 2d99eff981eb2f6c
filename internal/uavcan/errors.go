package uavcan

import "errors"

// Sentinel errors returned by the deframer, session manager and node
// facade. Callers should use errors.Is against these, the same
// convention internal/server/errors.go uses for its own sentinels.
var (
	// ErrBufferExhausted is returned by a TransferInterface's Transmit
	// when the underlying transport has no room to enqueue the frame.
	// The caller is expected to retry.
	ErrBufferExhausted = errors.New("uavcan: transmit buffer exhausted")

	// ErrToggle is returned when a frame's toggle bit does not match
	// the expected alternation for its transfer.
	ErrToggle = errors.New("uavcan: toggle bit mismatch")

	// ErrCRC is returned when a completed multi-frame transfer's
	// payload does not match its claimed transport CRC.
	ErrCRC = errors.New("uavcan: transfer CRC mismatch")

	// ErrDeframerTerminal is returned when Ingest is called again on a
	// Deframer that has already moved to StateError.
	ErrDeframerTerminal = errors.New("uavcan: deframer is in a terminal error state")

	// ErrSessionTableFull names the full-session-table condition.
	// SessionManager.Ingest never returns it: a full table silently
	// evicts its oldest in-flight transfer, and NewSessionManager raises
	// a capacity below 1 to 1.
	ErrSessionTableFull = errors.New("uavcan: session table full")

	// ErrUnknownTypeID is passed to the Node's onError hook when a
	// received transfer's data type id has no registered subscriber.
	ErrUnknownTypeID = errors.New("uavcan: no subscriber for data type id")

	// ErrAnonymousRequired is returned by Broadcast when the node has no
	// assigned NodeID; only anonymous transfers are legal then.
	ErrAnonymousRequired = errors.New("uavcan: broadcast requires an assigned node id")

	// ErrAnonymousPayloadTooLarge is returned by BroadcastAnonymous when
	// body does not fit a single frame. Anonymous transfers carry no
	// source node to correlate a multi-frame CRC restart against, so
	// they are restricted to one frame.
	ErrAnonymousPayloadTooLarge = errors.New("uavcan: anonymous broadcast payload exceeds a single frame")
)

// ErrorMetricLabel maps a sentinel error to the kind label of the
// uavcan_transfer_errors_total counter (the gateway's NodeStatus and
// onError paths also use it as the where label of errors_total),
// mirroring mapErrToMetric in internal/server/errors.go.
func ErrorMetricLabel(err error) string {
	switch {
	case errors.Is(err, ErrBufferExhausted):
		return "buffer_exhausted"
	case errors.Is(err, ErrToggle):
		return "toggle"
	case errors.Is(err, ErrCRC):
		return "crc"
	case errors.Is(err, ErrDeframerTerminal):
		return "terminal"
	case errors.Is(err, ErrSessionTableFull):
		return "session_full"
	case errors.Is(err, ErrUnknownTypeID):
		return "unknown_type"
	case errors.Is(err, ErrAnonymousRequired):
		return "anonymous_required"
	case errors.Is(err, ErrAnonymousPayloadTooLarge):
		return "anonymous_payload_too_large"
	default:
		return "other"
	}
}

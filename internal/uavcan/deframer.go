package uavcan

import "errors"

// DeframerState names the state of a per-transfer deframer.
type DeframerState int

const (
	StateIdle DeframerState = iota
	StateInProgress
	StateCompleting
	StateError
)

// ErrorKind names why a deframer entered StateError.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorToggle
	ErrorCRC
)

// Deframer is a per-transfer state machine: it accumulates frame
// payloads for one FullTransferID, validates the toggle sequence and
// (for multi-frame transfers) the transport CRC, and yields the
// reassembled body bytes once EOT arrives.
type Deframer struct {
	state       DeframerState
	errorKind   ErrorKind
	nextToggle  bool
	body        []byte
	sawAnyFrame bool
	claimedCRC  uint16
	hasCRC      bool
}

// NewDeframer returns an Idle deframer ready to ingest the first frame
// of a new transfer.
func NewDeframer() *Deframer { return &Deframer{} }

func (d *Deframer) State() DeframerState { return d.state }
func (d *Deframer) ErrorKind() ErrorKind { return d.errorKind }

// Ingest feeds one frame into the state machine. It returns:
//   - (body, true, nil) when the frame completed the transfer (EOT and
//     CRC, if applicable, both check out)
//   - (nil, false, nil) when more frames are expected
//   - (nil, false, err) when the frame violates toggle or CRC and the
//     deframer has moved to StateError (terminal — construct a new
//     Deframer to continue)
func (d *Deframer) Ingest(f Frame) ([]byte, bool, error) {
	if d.state == StateError {
		return nil, false, ErrDeframerTerminal
	}
	tail := f.Tail()
	payload := f.Payload()
	payload = payload[:len(payload)-1] // strip tail byte

	switch d.state {
	case StateIdle:
		if !tail.StartOfTransfer() {
			// Belongs to a transfer we never saw the start of; ignored,
			// not an error.
			return nil, false, nil
		}
		return d.startTransfer(tail, payload)

	case StateInProgress:
		if tail.StartOfTransfer() {
			// New SOT while in progress: discard the old partial
			// transfer and restart.
			*d = Deframer{}
			return d.startTransfer(tail, payload)
		}
		if tail.Toggle() != d.nextToggle {
			d.state = StateError
			d.errorKind = ErrorToggle
			return nil, false, ErrToggle
		}
		d.body = append(d.body, payload...)
		if tail.EndOfTransfer() {
			return d.complete()
		}
		d.nextToggle = !d.nextToggle
		return nil, false, nil
	}
	return nil, false, errors.New("uavcan: deframer in unexpected state")
}

func (d *Deframer) startTransfer(tail TailByte, payload []byte) ([]byte, bool, error) {
	d.sawAnyFrame = true
	if tail.EndOfTransfer() {
		// Single-frame transfer: no CRC, payload is the whole body.
		d.state = StateCompleting
		body := append([]byte(nil), payload...)
		d.state = StateIdle
		return body, true, nil
	}
	// Multi-frame: first two bytes of payload are the little-endian CRC.
	if len(payload) < 2 {
		d.state = StateError
		d.errorKind = ErrorCRC
		return nil, false, ErrCRC
	}
	d.hasCRC = true
	d.claimedCRC = uint16(payload[0]) | uint16(payload[1])<<8
	d.body = append([]byte(nil), payload[2:]...)
	d.nextToggle = true
	d.state = StateInProgress
	return nil, false, nil
}

func (d *Deframer) complete() ([]byte, bool, error) {
	d.state = StateCompleting
	if d.hasCRC {
		if TransportCRC(d.body) != d.claimedCRC {
			d.state = StateError
			d.errorKind = ErrorCRC
			return nil, false, ErrCRC
		}
	}
	body := d.body
	d.state = StateIdle
	return body, true, nil
}

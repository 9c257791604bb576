package client

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// transportEvent crosses the boundary between transport goroutines and the
// client's single run loop. gen identifies the transport generation so late
// events from a replaced transport are discarded.
type transportEvent struct {
	gen    int
	frame  *types.Envelope // set for inbound frames
	closed bool            // set when the transport ended
	err    error           // close cause, nil on clean shutdown
}

// connManager owns at most one live websocket transport. All transitions of
// the connection state machine happen here; nothing else touches the handle.
type connManager struct {
	dialer *websocket.Dialer
	events chan<- transportEvent

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeCh chan []byte
	cancel  context.CancelFunc
	gen     int
}

func newConnManager(handshakeTimeout time.Duration, events chan<- transportEvent) *connManager {
	return &connManager{
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		events: events,
		state:  Disconnected,
	}
}

// open dials addr and, on handshake success, starts the transport goroutines.
// Any prior transport is closed first: at most one live transport at a time.
// A handshake failure leaves the manager Errored until the next open call.
func (m *connManager) open(ctx context.Context, addr string, gen int) error {
	m.close()

	m.mu.Lock()
	m.state = Connecting
	m.gen = gen
	m.mu.Unlock()

	conn, _, err := m.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		m.mu.Lock()
		m.state = Errored
		m.mu.Unlock()
		return err
	}

	tctx, cancel := context.WithCancel(context.Background())
	writeCh := make(chan []byte, 64)

	m.mu.Lock()
	// The dial raced a close or a newer open; discard this transport.
	if m.gen != gen || m.state != Connecting {
		m.mu.Unlock()
		cancel()
		_ = conn.Close()
		return ErrNotOpen
	}
	m.state = Open
	m.conn = conn
	m.writeCh = writeCh
	m.cancel = cancel
	m.mu.Unlock()

	go m.writeLoop(conn, writeCh, tctx)
	go m.readLoop(conn, gen)
	return nil
}

// writeLoop is the single writer for the transport; websocket writes must
// never be issued from more than one goroutine.
func (m *connManager) writeLoop(conn *websocket.Conn, writeCh chan []byte, ctx context.Context) {
	for {
		select {
		case data := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop decodes inbound frames and feeds them to the run loop. Frames
// that do not parse as envelopes are dropped: forward-compatibility noise,
// not an error.
func (m *connManager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			m.transportEnded(gen, clean)
			if clean {
				err = nil
			}
			m.emit(transportEvent{gen: gen, closed: true, err: err})
			return
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("client: dropping undecodable frame: %v", err)
			continue
		}
		m.emit(transportEvent{gen: gen, frame: &env})
	}
}

// emit hands an event to the run loop without ever blocking a transport
// goroutine. If the run loop has stopped draining, the event is dropped.
func (m *connManager) emit(ev transportEvent) {
	select {
	case m.events <- ev:
	default:
		log.Printf("client: event queue full, dropping %s event", eventName(ev))
	}
}

func eventName(ev transportEvent) string {
	if ev.closed {
		return "close"
	}
	return "frame"
}

// transportEnded records the given generation's read pump exiting while
// still current: Disconnected after a clean close, Errored after an I/O
// failure.
func (m *connManager) transportEnded(gen int, clean bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.state == Open {
		if clean {
			m.state = Disconnected
		} else {
			m.state = Errored
		}
		if m.cancel != nil {
			m.cancel()
		}
		m.conn = nil
	}
}

// send writes an envelope-shaped value to the transport. When the transport
// is not Open the send fails silently from the connection's point of view:
// it is logged and reported to the caller, but never escalated. Whether a
// failed send rolls back optimistic state is the engine's decision.
func (m *connManager) send(v interface{}) error {
	m.mu.Lock()
	state := m.state
	writeCh := m.writeCh
	m.mu.Unlock()

	if state != Open {
		log.Printf("client: dropping send, transport %s", state)
		return ErrNotOpen
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case writeCh <- data:
		return nil
	case <-time.After(5 * time.Second):
		return ErrNotOpen
	}
}

// close tears the transport down. Idempotent: closing a Disconnected manager
// is a no-op.
func (m *connManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Disconnected && m.conn == nil {
		m.state = Disconnected
		return
	}
	m.state = Closing
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		_ = m.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = m.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = Disconnected
}

// State returns the current connection state.
func (m *connManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

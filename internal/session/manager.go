package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yola1107/baccarat/internal/conf"
	"github.com/yola1107/baccarat/internal/event"
	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/work"
)

var (
	errMaxRetries   = errors.New("session: max retries reached")
	errEndpointBusy = errors.New("session: connected to a different endpoint")
)

// State is the connection state owned by the Manager.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

var stateNames = map[State]string{
	StateDisconnected: "Disconnected",
	StateConnecting:   "Connecting",
	StateConnected:    "Connected",
	StateReconnecting: "Reconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", s)
}

const pongType = "pong"

// Manager owns exactly one logical server connection: connect, heartbeat,
// reconnect. Every inbound text frame that is not a pong goes to the bus
// unexamined.
type Manager struct {
	cfg   *conf.Server
	bus   *event.Bus
	loop  *work.Loop
	sched work.Scheduler
	bg    *work.AntsLoop

	mu            sync.Mutex
	state         State
	endpoint      string
	tr            *transport
	autoReconnect bool
	retryCount    int32
	hbTask        int64
	reTask        int64
}

// NewManager wires the session manager. bus must not be nil; loop, sched and
// bg may be nil for tests (timers then run on plain goroutines).
func NewManager(cfg *conf.Server, bus *event.Bus, loop *work.Loop, sched work.Scheduler, bg *work.AntsLoop) *Manager {
	if bus == nil {
		panic("session: nil bus")
	}
	return &Manager{
		cfg:    cfg,
		bus:    bus,
		loop:   loop,
		sched:  sched,
		bg:     bg,
		hbTask: -1,
		reTask: -1,
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the endpoint. Calling it while already Connecting,
// Reconnecting, or Connected to the same endpoint is a no-op. A failed
// deliberate connect does not trigger the reconnect loop.
func (m *Manager) Connect(endpoint string) error {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return nil
	case StateConnected:
		busy := m.endpoint != endpoint
		m.mu.Unlock()
		if busy {
			return errEndpointBusy
		}
		return nil
	}
	m.endpoint = endpoint
	m.autoReconnect = true
	m.retryCount = 0
	old := m.state
	m.state = StateConnecting
	m.mu.Unlock()
	m.publishState(old, StateConnecting)

	conn, err := m.dial()
	if err != nil {
		m.mu.Lock()
		prev := m.state
		m.state = StateDisconnected
		m.mu.Unlock()
		m.publishState(prev, StateDisconnected)
		log.Warnf("connect to %q failed: %v", endpoint, err)
		return err
	}
	m.attach(conn)
	return nil
}

// Disconnect drives to Disconnected, disables auto-reconnect and cancels the
// heartbeat and any pending retry before returning.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.autoReconnect = false
	m.stopTimersLocked()
	tr := m.tr
	m.tr = nil
	old := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	if tr != nil {
		tr.close()
	}
	if old != StateDisconnected {
		m.publishState(old, StateDisconnected)
	}
}

// Shutdown is Disconnect; kept separate so wiring code reads explicitly.
func (m *Manager) Shutdown() {
	m.Disconnect()
}

// SendMessage serializes v as JSON and writes it; fails when not Connected.
func (m *Manager) SendMessage(v any) bool {
	m.mu.Lock()
	tr := m.tr
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || tr == nil {
		log.Warnf("sendMessage dropped: not connected")
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("sendMessage marshal: %v", err)
		return false
	}
	if err := tr.writeText(data); err != nil {
		log.Errorf("sendMessage write: %v", err)
		return false
	}
	return true
}

// SendCommand writes a {"type": msgType, ...fields} envelope; this is the
// outbound surface UI collaborators use for place_bet / cancel_bet.
func (m *Manager) SendCommand(msgType string, fields map[string]any) bool {
	envelope := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		envelope[k] = v
	}
	envelope["type"] = msgType
	return m.SendMessage(envelope)
}

func (m *Manager) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectDuration()}
	conn, _, err := dialer.Dial(m.endpoint, nil)
	return conn, err
}

// attach installs a fresh transport handle, tearing down any prior one first
// so handlers never accumulate across retries. A Disconnect that landed while
// the dial was in flight wins: the late connection is closed and discarded.
func (m *Manager) attach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.state != StateConnecting && m.state != StateReconnecting {
		m.mu.Unlock()
		log.Warnf("dial resolved after disconnect, dropping connection")
		_ = conn.Close()
		return
	}
	if m.tr != nil {
		stale := m.tr
		m.tr = nil
		go stale.close()
	}
	// the read pump may fire onClosed and nil out m.tr the moment we unlock,
	// so everything logged below comes from locals
	tr := newTransport(conn, m, m.cfg.WriteDuration())
	m.tr = tr
	m.retryCount = 0
	endpoint := m.endpoint
	old := m.state
	m.state = StateConnected
	m.startHeartbeatLocked()
	m.mu.Unlock()

	log.Infof("connected to %q transport=%q", endpoint, tr.ID())
	m.publishState(old, StateConnected)
}

func (m *Manager) startHeartbeatLocked() {
	if m.sched == nil {
		return
	}
	if m.hbTask >= 0 {
		m.sched.Cancel(m.hbTask)
	}
	m.hbTask = m.sched.Forever(m.cfg.HeartbeatDuration(), m.sendPing)
}

func (m *Manager) stopTimersLocked() {
	if m.sched == nil {
		return
	}
	if m.hbTask >= 0 {
		m.sched.Cancel(m.hbTask)
		m.hbTask = -1
	}
	if m.reTask >= 0 {
		m.sched.Cancel(m.reTask)
		m.reTask = -1
	}
}

func (m *Manager) sendPing() {
	m.mu.Lock()
	tr := m.tr
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || tr == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"type": "ping"})
	if err := tr.writeText(data); err != nil {
		log.Warnf("heartbeat write failed: %v", err)
	}
}

// onFrame implements frameHandler. Pongs are consumed here and never reach
// the bus.
func (m *Manager) onFrame(t *transport, data []byte) {
	m.mu.Lock()
	current := m.tr
	m.mu.Unlock()
	if t != current {
		return // stale transport still draining
	}

	if event.MessageType(data) == pongType {
		return
	}

	if m.loop != nil {
		m.loop.Post(func() { m.bus.ProcessRawMessage(data) })
		return
	}
	m.bus.ProcessRawMessage(data)
}

// onClosed implements frameHandler.
func (m *Manager) onClosed(t *transport, err error) {
	m.mu.Lock()
	if t != m.tr {
		m.mu.Unlock()
		return
	}
	m.tr = nil
	if m.hbTask >= 0 && m.sched != nil {
		m.sched.Cancel(m.hbTask)
		m.hbTask = -1
	}

	old := m.state
	if m.autoReconnect && m.cfg.MaxRetryAttempts != 0 {
		m.state = StateReconnecting
		m.scheduleRetryLocked()
		m.mu.Unlock()
		log.Warnf("connection lost (%v), reconnecting", err)
		m.publishState(old, StateReconnecting)
		return
	}

	m.state = StateDisconnected
	m.mu.Unlock()
	log.Warnf("connection lost (%v), reconnect disabled", err)
	m.publishState(old, StateDisconnected)
}

func (m *Manager) scheduleRetryLocked() {
	if m.sched != nil {
		m.reTask = m.sched.Once(m.cfg.RetryDuration(), func() { m.postBackground(m.retryDial) })
		return
	}
	go m.retryDial()
}

// postBackground keeps blocking dials off the cooperative loop.
func (m *Manager) postBackground(f func()) {
	if m.bg != nil {
		m.bg.Post(f)
		return
	}
	go f()
}

func (m *Manager) canRetryLocked() bool {
	maxAttempt := m.cfg.MaxRetryAttempts
	if maxAttempt < 0 {
		return true // unlimited
	}
	return m.retryCount < maxAttempt
}

func (m *Manager) retryDial() {
	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.reTask = -1
	m.retryCount++
	attempt := m.retryCount
	endpoint := m.endpoint
	m.mu.Unlock()

	log.Warnf("reconnecting to %q attempt=%d", endpoint, attempt)
	conn, err := m.dial()
	if err == nil {
		// attach re-checks the state under its own lock and drops the
		// connection when a disconnect won the race
		m.attach(conn)
		return
	}

	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	if m.canRetryLocked() {
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateDisconnected
	m.mu.Unlock()
	log.Errorf("%v: %d attempts on %q", errMaxRetries, attempt, endpoint)
	m.publishState(old, StateDisconnected)
}

func (m *Manager) publishState(old, next State) {
	if old == next {
		return
	}
	m.bus.Publish(&event.ConnectionStateChanged{Old: old.String(), New: next.String()})
}

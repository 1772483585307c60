package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/xgo"
)

// frameHandler receives transport callbacks. The transport pointer is passed
// back so the owner can ignore callbacks from a handle it already replaced.
type frameHandler interface {
	onFrame(t *transport, data []byte)
	onClosed(t *transport, err error)
}

// transport owns one websocket connection and its read pump.
type transport struct {
	id           string
	conn         *websocket.Conn
	h            frameHandler
	writeTimeout time.Duration
	connMu       sync.Mutex
	closed       atomic.Bool
}

func newTransport(conn *websocket.Conn, h frameHandler, writeTimeout time.Duration) *transport {
	t := &transport{
		id:           uuid.New().String(),
		conn:         conn,
		h:            h,
		writeTimeout: writeTimeout,
	}
	go t.readPump()
	return t
}

func (t *transport) ID() string { return t.id }

func (t *transport) Closed() bool { return t.closed.Load() }

func (t *transport) readPump() {
	defer xgo.RecoverFromError(nil)

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warnf("transport=%q unexpected close: %v", t.id, err)
			}
			t.closeWithNotify(err)
			return
		}

		switch msgType {
		case websocket.TextMessage:
			t.h.onFrame(t, data)
		case websocket.CloseMessage:
			t.closeWithNotify(nil)
			return
		default:
			log.Warnf("transport=%q unsupported message type: %d", t.id, msgType)
		}
	}
}

func (t *transport) writeText(data []byte) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) closeWithNotify(err error) {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.connMu.Lock()
	_ = t.conn.Close()
	t.connMu.Unlock()
	t.h.onClosed(t, err)
}

// close tears the connection down without notifying the handler; used when
// the owner detaches the handle deliberately (disconnect, redial).
func (t *transport) close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Normal Closure")
	t.connMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(t.writeTimeout))
	_ = t.conn.Close()
	t.connMu.Unlock()
}

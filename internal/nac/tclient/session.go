package tclient

import (
	"log/slog"
	"sync"
	"time"
)

// RespCallback receives the outcome of a SendMsg call: either the
// matching response packet, or a non-nil err (ErrRequestTimeout,
// ErrNotConnected, or whatever the transport reported).
type RespCallback func(resp *Packet, err error)

// MsgReceiver handles a packet that did not correlate to any pending
// SendMsg call — an unsolicited push from the peer.
type MsgReceiver func(pkt *Packet)

// SendFunc is the low-level send the SessionManager drives; AccessCtrl
// wires this to its sendPacket method when it is constructed.
type SendFunc func(pkt *Packet, onDone func(err error, written int))

// DeadlineScheduler arms a one-shot callback after d and returns a
// function that cancels it. threading.Executor-backed timers satisfy
// this through a small adapter in access.go; tests can supply a fake.
type DeadlineScheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

type pendingRequest struct {
	cb     RespCallback
	cancel func()
}

// SessionManager correlates outbound requests with inbound responses by
// sequence id. It owns no transport of its own: sendImpl is injected, so
// the same SessionManager logic is exercised whether the underlying
// bytes travel over TCP, TLS, or (in tests) an in-memory pipe.
type SessionManager struct {
	mu      sync.Mutex
	pending map[int64]*pendingRequest

	seq         *SeqIDGenerator
	sendImpl    SendFunc
	msgReceiver MsgReceiver
	logger      *slog.Logger
}

// NewSessionManager builds a SessionManager. nodeID seeds the sequence
// id generator.
func NewSessionManager(nodeID int64, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		pending: make(map[int64]*pendingRequest),
		seq:     NewSeqIDGenerator(nodeID),
		logger:  logger,
	}
}

// SetSendImpl installs the function used to actually write a framed
// packet to the wire.
func (sm *SessionManager) SetSendImpl(fn SendFunc) {
	sm.mu.Lock()
	sm.sendImpl = fn
	sm.mu.Unlock()
}

// SetMsgReceiver installs the handler for packets that do not correlate
// to a pending request.
func (sm *SessionManager) SetMsgReceiver(fn MsgReceiver) {
	sm.mu.Lock()
	sm.msgReceiver = fn
	sm.mu.Unlock()
}

// SendMsg allocates a sequence id, registers a callback against it,
// arms a per-request timeout, and hands the framed packet to sendImpl.
// The returned seqID is 0 if no sendImpl is wired; in that case cb has
// already been invoked synchronously with ErrNotConnected. If the send
// itself fails, cb receives that error and the allocated seqID is still
// returned.
func (sm *SessionManager) SendMsg(bizCode int32, data []byte, timeout time.Duration, scheduler DeadlineScheduler, cb RespCallback) int64 {
	sm.mu.Lock()
	sendImpl := sm.sendImpl
	sm.mu.Unlock()

	if sendImpl == nil {
		if cb != nil {
			cb(nil, ErrNotConnected)
		}
		return 0
	}

	seqID := sm.seq.Next()
	pkt := &Packet{BizCode: bizCode, SeqID: seqID, Data: data}

	var cancelTimeout func()
	if timeout > 0 && scheduler != nil {
		cancelTimeout = scheduler.After(timeout, func() { sm.timeoutRequest(seqID) })
	}

	sm.mu.Lock()
	sm.pending[seqID] = &pendingRequest{cb: cb, cancel: cancelTimeout}
	sm.mu.Unlock()

	sendImpl(pkt, func(err error, _ int) {
		if err == nil {
			return
		}
		sm.failRequest(seqID, err)
	})

	return seqID
}

func (sm *SessionManager) timeoutRequest(seqID int64) {
	sm.failRequest(seqID, ErrRequestTimeout)
}

func (sm *SessionManager) failRequest(seqID int64, err error) {
	sm.mu.Lock()
	req, ok := sm.pending[seqID]
	if ok {
		delete(sm.pending, seqID)
	}
	sm.mu.Unlock()

	if !ok {
		return
	}
	if req.cancel != nil {
		req.cancel()
	}
	if req.cb != nil {
		req.cb(nil, err)
	}
}

// OnProcessPacket routes an inbound packet: first to a pending SendMsg
// waiter matched by sequence id, falling back to the installed
// MsgReceiver for unsolicited pushes. A packet that matches neither is
// logged and dropped.
func (sm *SessionManager) OnProcessPacket(pkt *Packet) {
	sm.mu.Lock()
	req, ok := sm.pending[pkt.SeqID]
	if ok {
		delete(sm.pending, pkt.SeqID)
	}
	receiver := sm.msgReceiver
	sm.mu.Unlock()

	if ok {
		if req.cancel != nil {
			req.cancel()
		}
		if req.cb != nil {
			req.cb(pkt, nil)
		}
		return
	}

	if receiver != nil {
		receiver(pkt)
		return
	}

	sm.logger.Warn("tclient: unmatched packet dropped", "bizCode", pkt.BizCode, "seqId", pkt.SeqID)
}

// PendingCount returns the number of outstanding SendMsg calls awaiting
// a response. Primarily for tests and diagnostics.
func (sm *SessionManager) PendingCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.pending)
}

// CancelAll fails every pending request with err, used on disconnect so
// no caller blocks forever waiting for a response that can never arrive.
func (sm *SessionManager) CancelAll(err error) {
	sm.mu.Lock()
	pending := sm.pending
	sm.pending = make(map[int64]*pendingRequest)
	sm.mu.Unlock()

	for _, req := range pending {
		if req.cancel != nil {
			req.cancel()
		}
		if req.cb != nil {
			req.cb(nil, err)
		}
	}
}

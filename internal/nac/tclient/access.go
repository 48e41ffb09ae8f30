package tclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/internal/threading"
	"github.com/falconqueue/taskcore/internal/timer"
)

// Reserved biz codes for the control-plane messages AccessCtrl itself
// exchanges with the peer, kept out of band from whatever biz codes the
// application layer built on top of SendMsg chooses to reserve. Exported so
// a peer implementation (e.g. a NAC-facing listener) can recognize and
// answer them without guessing the wire values.
const (
	BizAuthRequest int32 = -1
	BizHeartbeat   int32 = -2

	bizAuthRequest = BizAuthRequest
	bizHeartbeat   = BizHeartbeat
)

// AuthDataGenerator produces the payload sent as the auth request once a
// connection is established.
type AuthDataGenerator func() []byte

// AuthResultHandler inspects an auth response payload and reports
// whether authentication succeeded.
type AuthResultHandler func(data []byte) (ok bool, err error)

// HeartbeatDataGenerator produces the payload sent as a heartbeat probe.
type HeartbeatDataGenerator func() []byte

// AccessConfig mirrors the original AccessConfig field set and defaults.
type AccessConfig struct {
	Host string
	Port int
	TLS  TLSParam

	// AuthTimeout bounds how long Authenticating may last before the
	// attempt is abandoned and a reconnect is scheduled.
	AuthTimeout time.Duration

	// HeartbeatInterval is how often a liveness probe is considered.
	HeartbeatInterval time.Duration

	// OfflineTime is how long without any received traffic before the
	// connection is declared Offline and torn down.
	OfflineTime time.Duration

	// HeartbeatTolerance is the slack subtracted from HeartbeatInterval
	// when deciding whether recent real traffic already proved
	// liveness, sparing a redundant heartbeat probe.
	HeartbeatTolerance time.Duration

	// RetryInterval is the reconnect backoff sequence. The last element
	// repeats indefinitely once exhausted.
	RetryInterval []time.Duration

	// NodeID seeds the per-request sequence id generator.
	NodeID int64
}

// DefaultAccessConfig returns the same defaults as the original NAC
// client: 30s auth timeout, 15s heartbeat interval, 61s offline
// threshold, 500ms heartbeat tolerance, and a 1s constant retry.
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		AuthTimeout:        30 * time.Second,
		HeartbeatInterval:  15 * time.Second,
		OfflineTime:        61 * time.Second,
		HeartbeatTolerance: 500 * time.Millisecond,
		RetryInterval:      []time.Duration{1 * time.Second},
	}
}

// StateHandler observes a ConnectState transition.
type StateHandler func(old, new ConnectState)

// Subscription is returned by SubscribeState; closing it unregisters the
// handler. This replaces the original's weak_ptr-based auto-unsubscribe
// with an explicit handle, the idiomatic Go equivalent the design notes
// call for.
type Subscription struct {
	close func()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// AccessCtrl is the public façade over the connect/auth/heartbeat/
// offline-check state machine: the Go realization of the original
// AccessCtrl + ConnectService pair, collapsed into one type since Go has
// no need for the original's signal/slot indirection between them.
type AccessCtrl struct {
	cfg       AccessConfig
	transport Transport
	framer    *Framer
	session   *SessionManager
	executor  threading.Executor
	logger    *slog.Logger

	mu           sync.Mutex
	state        ConnectState
	stopped      bool
	retryIdx     int
	lastRecvAt   time.Time
	subsNext     int
	subs         map[int]StateHandler

	authDataGen       AuthDataGenerator
	authResultHandler AuthResultHandler
	hbDataGen         HeartbeatDataGenerator

	authTimer    *timer.DeadlineTimer
	hbTimer      *timer.SteadyTimer
	offlineTimer *timer.SteadyTimer
	retryTimer   *timer.DeadlineTimer
}

// NewAccessCtrl builds an AccessCtrl. If executor is nil, a private
// FiberExecutor is started and owned internally, serializing every
// timer/transport callback onto one goroutine the way the original's
// single dispatch thread did.
func NewAccessCtrl(cfg AccessConfig, transport Transport, executor threading.Executor, logger *slog.Logger) *AccessCtrl {
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		fb := threading.NewFiberExecutor("nac-access-ctrl", 64, nil)
		fb.Start()
		executor = fb
	}

	ac := &AccessCtrl{
		cfg:       cfg,
		transport: transport,
		framer:    NewFramer(),
		session:   NewSessionManager(cfg.NodeID, logger),
		executor:  executor,
		logger:    logger,
		state:     Idle,
		subs:      make(map[int]StateHandler),
	}
	ac.session.SetSendImpl(ac.sendPacket)
	return ac
}

// SetAuthDataGenerator installs the auth request payload generator.
func (ac *AccessCtrl) SetAuthDataGenerator(fn AuthDataGenerator) { ac.authDataGen = fn }

// SetAuthResultHandler installs the auth response validator.
func (ac *AccessCtrl) SetAuthResultHandler(fn AuthResultHandler) { ac.authResultHandler = fn }

// SetHeartbeatDataGenerator installs the heartbeat payload generator.
func (ac *AccessCtrl) SetHeartbeatDataGenerator(fn HeartbeatDataGenerator) { ac.hbDataGen = fn }

// SetMsgReceiver installs the handler for unsolicited inbound packets.
func (ac *AccessCtrl) SetMsgReceiver(fn MsgReceiver) { ac.session.SetMsgReceiver(fn) }

// SubscribeState registers fn to observe every state transition from
// here forward. The returned Subscription's Close unregisters it.
func (ac *AccessCtrl) SubscribeState(fn StateHandler) *Subscription {
	ac.mu.Lock()
	id := ac.subsNext
	ac.subsNext++
	ac.subs[id] = fn
	ac.mu.Unlock()

	return &Subscription{close: func() {
		ac.mu.Lock()
		delete(ac.subs, id)
		ac.mu.Unlock()
	}}
}

// State returns the current connection state.
func (ac *AccessCtrl) State() ConnectState {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.state
}

// IsConnected reports whether the state machine is in Connected.
func (ac *AccessCtrl) IsConnected() bool { return ac.State() == Connected }

func (ac *AccessCtrl) setState(s ConnectState) {
	ac.mu.Lock()
	old := ac.state
	ac.state = s
	handlers := make([]StateHandler, 0, len(ac.subs))
	for _, h := range ac.subs {
		handlers = append(handlers, h)
	}
	ac.mu.Unlock()

	for _, h := range handlers {
		h(old, s)
	}
}

// Start validates wiring and kicks off the first connect attempt.
func (ac *AccessCtrl) Start(ctx context.Context) error {
	ac.mu.Lock()
	if ac.stopped {
		ac.mu.Unlock()
		return ErrAlreadyStarted
	}
	ac.mu.Unlock()

	ac.transport.SetOnConnect(ac.onTransportConnect)
	ac.transport.SetOnData(ac.onData)
	ac.doConnect(ctx)
	return nil
}

func (ac *AccessCtrl) doConnect(ctx context.Context) {
	ac.setState(Connecting)
	ac.framer.Reset()
	ac.transport.Connect(ctx, ac.cfg.Host, ac.cfg.Port, ac.cfg.TLS)
}

func (ac *AccessCtrl) onTransportConnect(err error) {
	if err != nil {
		ac.logger.Warn("tclient: connect failed", "error", err)
		ac.setState(Disconnected)
		ac.scheduleRetry()
		return
	}

	ac.mu.Lock()
	ac.retryIdx = 0
	ac.lastRecvAt = time.Now()
	ac.mu.Unlock()

	ac.setState(Authenticating)
	ac.armAuthTimeout()
	ac.sendAuthRequest()
}

func (ac *AccessCtrl) armAuthTimeout() {
	ac.authTimer = timer.NewDeadlineTimer("nac-auth-timeout", time.Now().Add(ac.cfg.AuthTimeout), ac.executor, func(ctx context.Context) {
		ac.logger.Warn("tclient: auth timed out")
		ac.transport.Stop()
		ac.setState(Disconnected)
		ac.scheduleRetry()
	})
	ac.authTimer.Start()
}

func (ac *AccessCtrl) sendAuthRequest() {
	var payload []byte
	if ac.authDataGen != nil {
		payload = ac.authDataGen()
	}
	ac.session.SendMsg(bizAuthRequest, payload, 0, nil, ac.onAuthResponse)
}

func (ac *AccessCtrl) onAuthResponse(resp *Packet, err error) {
	if ac.authTimer != nil {
		ac.authTimer.Stop()
	}

	if err != nil {
		ac.logger.Warn("tclient: auth request failed", "error", err)
		ac.transport.Stop()
		ac.setState(Disconnected)
		ac.scheduleRetry()
		return
	}

	ok := true
	if ac.authResultHandler != nil {
		ok, err = ac.authResultHandler(resp.Data)
	}
	if !ok || err != nil {
		ac.logger.Warn("tclient: auth rejected", "error", err)
		ac.transport.Stop()
		ac.setState(Disconnected)
		ac.scheduleRetry()
		return
	}

	ac.setState(Connected)
	ac.startHeartbeat()
	ac.startOfflineCheck()
}

func (ac *AccessCtrl) startHeartbeat() {
	ac.hbTimer = timer.NewSteadyTimer("nac-heartbeat", ac.cfg.HeartbeatInterval, ac.cfg.HeartbeatInterval, ac.executor, func(ctx context.Context) {
		ac.onHeartbeatTick()
	})
	ac.hbTimer.Start()
}

func (ac *AccessCtrl) onHeartbeatTick() {
	ac.mu.Lock()
	sinceRecv := time.Since(ac.lastRecvAt)
	ac.mu.Unlock()

	// Real traffic already proved liveness well within this interval;
	// skip sending a redundant probe this tick.
	if sinceRecv+ac.cfg.HeartbeatTolerance < ac.cfg.HeartbeatInterval {
		return
	}

	var payload []byte
	if ac.hbDataGen != nil {
		payload = ac.hbDataGen()
	}
	ac.session.SendMsg(bizHeartbeat, payload, ac.cfg.HeartbeatInterval/2, nil, func(resp *Packet, err error) {
		if err == nil {
			ac.mu.Lock()
			ac.lastRecvAt = time.Now()
			ac.mu.Unlock()
		}
	})
}

func (ac *AccessCtrl) startOfflineCheck() {
	ac.offlineTimer = timer.NewSteadyTimer("nac-offline-check", ac.cfg.HeartbeatInterval, ac.cfg.HeartbeatInterval, ac.executor, func(ctx context.Context) {
		ac.onOfflineCheckTick()
	})
	ac.offlineTimer.Start()
}

func (ac *AccessCtrl) onOfflineCheckTick() {
	ac.mu.Lock()
	sinceRecv := time.Since(ac.lastRecvAt)
	ac.mu.Unlock()

	if sinceRecv > ac.cfg.OfflineTime {
		ac.logger.Warn("tclient: connection offline", "since", sinceRecv)
		ac.stopLivenessTimers()
		ac.transport.Stop()
		ac.setState(Offline)
		ac.scheduleRetry()
	}
}

func (ac *AccessCtrl) stopLivenessTimers() {
	if ac.hbTimer != nil {
		ac.hbTimer.Stop()
	}
	if ac.offlineTimer != nil {
		ac.offlineTimer.Stop()
	}
}

func (ac *AccessCtrl) onData(data []byte) {
	packets, err := ac.framer.Feed(data)
	for _, p := range packets {
		ac.mu.Lock()
		ac.lastRecvAt = time.Now()
		ac.mu.Unlock()
		ac.session.OnProcessPacket(p)
	}
	if err != nil {
		ac.logger.Warn("tclient: framing error, reconnecting", "error", err)
		ac.stopLivenessTimers()
		ac.transport.Stop()
		ac.setState(Disconnected)
		ac.scheduleRetry()
	}
}

func (ac *AccessCtrl) sendPacket(pkt *Packet, onDone func(err error, written int)) {
	buf, err := Encode(pkt)
	if err != nil {
		if onDone != nil {
			onDone(err, 0)
		}
		return
	}
	ac.transport.Send(buf, onDone)
}

func (ac *AccessCtrl) scheduleRetry() {
	ac.mu.Lock()
	if ac.stopped {
		ac.mu.Unlock()
		return
	}
	intervals := ac.cfg.RetryInterval
	if len(intervals) == 0 {
		intervals = []time.Duration{time.Second}
	}
	idx := ac.retryIdx
	if idx >= len(intervals) {
		idx = len(intervals) - 1
	}
	d := intervals[idx]
	if ac.retryIdx < len(intervals)-1 {
		ac.retryIdx++
	}
	ac.mu.Unlock()

	ac.session.CancelAll(ErrNotConnected)

	ac.retryTimer = timer.NewDeadlineTimer("nac-retry", time.Now().Add(d), ac.executor, func(ctx context.Context) {
		ac.doConnect(context.Background())
	})
	ac.retryTimer.Start()
}

// SendMsg forwards to the underlying SessionManager, arming a timeout
// timer on this AccessCtrl's executor when timeout > 0.
func (ac *AccessCtrl) SendMsg(bizCode int32, data []byte, timeout time.Duration, cb RespCallback) int64 {
	var scheduler DeadlineScheduler
	if timeout > 0 {
		scheduler = executorScheduler{ac.executor}
	}
	return ac.session.SendMsg(bizCode, data, timeout, scheduler, cb)
}

// executorScheduler adapts a threading.Executor into the DeadlineScheduler
// SessionManager needs to arm per-request timeouts.
type executorScheduler struct {
	exec threading.Executor
}

func (s executorScheduler) After(d time.Duration, fn func()) func() {
	dt := timer.NewDeadlineTimer("nac-request-timeout", time.Now().Add(d), s.exec, func(ctx context.Context) { fn() })
	dt.Start()
	return dt.Stop
}

// Disconnect tears the connection down and stops all retrying. A stopped
// AccessCtrl cannot be restarted; build a new one instead.
func (ac *AccessCtrl) Disconnect() {
	ac.mu.Lock()
	ac.stopped = true
	ac.mu.Unlock()

	ac.stopLivenessTimers()
	if ac.authTimer != nil {
		ac.authTimer.Stop()
	}
	if ac.retryTimer != nil {
		ac.retryTimer.Stop()
	}
	ac.session.CancelAll(ErrNotConnected)
	ac.transport.Stop()
	ac.setState(Idle)
}

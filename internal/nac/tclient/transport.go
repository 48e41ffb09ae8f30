package tclient

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
)

// TLSParam carries the optional TLS material for a one-way or two-way
// TLS handshake. A zero value means plain TCP.
type TLSParam struct {
	Enabled    bool
	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
}

// DataCallback is invoked with each raw chunk read off the wire.
type DataCallback func(data []byte)

// ConnectCallback is invoked once a Connect attempt resolves, with a
// non-nil err on failure.
type ConnectCallback func(err error)

// Transport is the opaque byte pipe the protocol layer frames messages
// over. AccessCtrl owns exactly one Transport at a time; reconnecting
// means discarding the old one and dialing a fresh one, never mutating
// it in place.
type Transport interface {
	// Connect dials host:port asynchronously; the result is delivered to
	// the callback registered via SetOnConnect.
	Connect(ctx context.Context, host string, port int, tls TLSParam)

	// Send writes data and reports the outcome through onDone, which
	// may be nil if the caller does not care.
	Send(data []byte, onDone func(err error, written int))

	// SetOnConnect installs the callback used for the next Connect
	// call's outcome.
	SetOnConnect(cb ConnectCallback)

	// SetOnData installs the callback invoked with every chunk read off
	// the wire once connected.
	SetOnData(cb DataCallback)

	// Stop closes the connection. Safe to call multiple times.
	Stop() error

	// IsRunning reports whether the transport currently holds an open
	// connection.
	IsRunning() bool

	// LocalAddr returns the local endpoint of the current connection, or
	// nil if not connected.
	LocalAddr() net.Addr
}

// TCPTransport is the default Transport: a real net.Conn, optionally
// upgraded to TLS, read on a single dedicated goroutine that feeds every
// chunk to the installed DataCallback.
type TCPTransport struct {
	mu       sync.Mutex
	conn     net.Conn
	running  bool
	onConn   ConnectCallback
	onData   DataCallback
	stopOnce sync.Once
	readDone chan struct{}
}

// NewTCPTransport builds an unconnected TCPTransport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// SetOnConnect implements Transport.
func (t *TCPTransport) SetOnConnect(cb ConnectCallback) {
	t.mu.Lock()
	t.onConn = cb
	t.mu.Unlock()
}

// SetOnData implements Transport.
func (t *TCPTransport) SetOnData(cb DataCallback) {
	t.mu.Lock()
	t.onData = cb
	t.mu.Unlock()
}

// Connect implements Transport. It dials in a new goroutine so callers
// never block on DNS resolution or a slow handshake.
func (t *TCPTransport) Connect(ctx context.Context, host string, port int, tlsParam TLSParam) {
	go func() {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		dialer := &net.Dialer{}

		var conn net.Conn
		var err error
		if tlsParam.Enabled {
			conf := &tls.Config{ServerName: tlsParam.ServerName}
			if tlsParam.CertFile != "" && tlsParam.KeyFile != "" {
				cert, cerr := tls.LoadX509KeyPair(tlsParam.CertFile, tlsParam.KeyFile)
				if cerr != nil {
					t.notifyConnect(cerr)
					return
				}
				conf.Certificates = []tls.Certificate{cert}
			}
			conn, err = tls.DialWithDialer(dialer, "tcp", addr, conf)
		} else {
			conn, err = dialer.DialContext(ctx, "tcp", addr)
		}

		if err != nil {
			t.notifyConnect(err)
			return
		}

		t.mu.Lock()
		t.conn = conn
		t.running = true
		t.stopOnce = sync.Once{}
		t.readDone = make(chan struct{})
		t.mu.Unlock()

		t.notifyConnect(nil)
		go t.readLoop(conn, t.readDone)
	}()
}

func (t *TCPTransport) notifyConnect(err error) {
	t.mu.Lock()
	cb := t.onConn
	t.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (t *TCPTransport) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			t.mu.Lock()
			cb := t.onData
			t.mu.Unlock()
			if cb != nil {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				cb(chunk)
			}
		}
		if err != nil {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return
		}
	}
}

// Send implements Transport.
func (t *TCPTransport) Send(data []byte, onDone func(err error, written int)) {
	t.mu.Lock()
	conn := t.conn
	running := t.running
	t.mu.Unlock()

	if !running || conn == nil {
		if onDone != nil {
			onDone(ErrNotConnected, 0)
		}
		return
	}

	go func() {
		n, err := conn.Write(data)
		if onDone != nil {
			onDone(err, n)
		}
	}()
}

// Stop implements Transport.
func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	conn := t.conn
	t.running = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsRunning implements Transport.
func (t *TCPTransport) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LocalAddr implements Transport.
func (t *TCPTransport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

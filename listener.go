package devrpc

import (
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hexlantern/devrpc/codec"
)

// Listener accepts client connections, runs the accepting half of the key
// handshake, and serves one loop per connection. N concurrent clients cost
// N goroutines; within a connection everything stays strictly sequential.
type Listener struct {
	key string
	reg *Registry
	log zerolog.Logger
	lis net.Listener

	mu     sync.Mutex
	claims map[string]string  // client key -> connection id, live connections only
	conns  map[string]Channel // connection id -> channel, for forced teardown
	closed bool

	wg sync.WaitGroup
}

// Listen binds addr and returns a listener advertising the given identity
// key. Call Serve to start accepting.
func Listen(addr, key string, reg *Registry, opts ...*Options) (*Listener, error) {
	opt, err := parseOptions(opts...)
	if err != nil {
		return nil, err
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{
		key:    key,
		reg:    reg,
		log:    opt.logger(),
		lis:    lis,
		claims: make(map[string]string),
		conns:  make(map[string]Channel),
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.lis.Addr() }

// Serve accepts connections until Close. Each accepted connection gets its
// own goroutine for handshake and server loop.
func (l *Listener) Serve() error {
	for {
		conn, err := l.lis.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return nil
			}
			l.log.Error().Err(err).Msg("accept failed")
			return err
		}
		l.wg.Add(1)
		go l.handle(conn)
	}
}

// Close stops accepting, tears down live connections so their blocked
// reads return, and waits for the per-connection goroutines to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrShutdown
	}
	l.closed = true
	chans := make([]Channel, 0, len(l.conns))
	for _, ch := range l.conns {
		chans = append(chans, ch)
	}
	l.mu.Unlock()

	err := l.lis.Close()
	for _, ch := range chans {
		_ = ch.Close()
	}
	l.wg.Wait()
	return err
}

func (l *Listener) handle(conn net.Conn) {
	defer l.wg.Done()

	id := uuid.NewString()
	log := l.log.With().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Logger()

	clientKey, err := serverHandshake(conn)
	if err != nil {
		// Bad magic gets no reply; the client reports a transport fault.
		log.Warn().Err(err).Msg("handshake rejected")
		_ = conn.Close()
		return
	}

	if strings.TrimPrefix(clientKey, ClientKeyPrefix) != l.key {
		log.Warn().Str("key", clientKey).Msg("no handler for key")
		_ = codec.WriteUint32(conn, codec.CodeKeyNotFound)
		_ = conn.Close()
		return
	}
	if !l.claim(clientKey, id) {
		log.Warn().Str("key", clientKey).Msg("key already claimed")
		_ = codec.WriteUint32(conn, codec.CodeKeyConflict)
		_ = conn.Close()
		return
	}
	defer l.release(clientKey, id)

	if err := codec.WriteUint32(conn, codec.Magic); err != nil {
		_ = conn.Close()
		return
	}
	if err := writeKey(conn, l.key); err != nil {
		_ = conn.Close()
		return
	}

	ch := NewSockChannel(conn)
	l.track(id, ch)
	defer l.untrack(id)

	log.Info().Str("key", clientKey).Msg("session established")
	ep := NewEndpoint(ch, l.key, clientKey, log)
	if err := ep.ServeLoop(l.reg); err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			log.Error().Err(err).Msg("server loop ended on transport fault")
		} else {
			log.Error().Err(err).Msg("server loop ended on protocol error")
		}
		return
	}
	log.Info().Msg("session closed")
}

// claim enforces key uniqueness among live connections. The handshake
// replies CodeKeyConflict when another connection already holds the key.
func (l *Listener) claim(key, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.claims[key]; taken {
		return false
	}
	l.claims[key] = id
	return true
}

func (l *Listener) release(key, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims[key] == id {
		delete(l.claims, key)
	}
}

func (l *Listener) track(id string, ch Channel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		// Lost the race with Close; tear down immediately so the serve
		// loop exits instead of outliving the listener.
		_ = ch.Close()
		return
	}
	l.conns[id] = ch
}

func (l *Listener) untrack(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, id)
}

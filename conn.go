package tacplus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// frame is one decoded inbound packet, routed from the reader to the
// session that owns it.
type frame struct {
	header *Header
	body   []byte
}

// ConnConfig carries the per-connection settings of a Conn.
type ConnConfig struct {
	// Secret is the shared secret used for body obfuscation. When empty,
	// outbound frames carry the UNENCRYPTED flag and inbound frames are
	// required to do the same.
	Secret []byte

	// AllowClearTextReplies accepts inbound clear-text frames even when a
	// secret is configured. Defaults to false.
	AllowClearTextReplies bool

	// SingleConnect requests single-connection mode on the first client
	// packet of the connection.
	SingleConnect bool

	// MaxBodyLength bounds inbound body lengths. Zero means
	// DefaultMaxBodyLength.
	MaxBodyLength uint32

	// Random supplies session IDs. Nil means crypto/rand.
	Random io.Reader

	// Logger receives diagnostics such as discarded frames. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Conn multiplexes TACACS+ sessions over a single byte stream. It owns the
// stream exclusively: outbound frames are serialized under a writer mutex
// covering exactly one full frame, and a single reader routes inbound frames
// to their owning sessions by session ID.
type Conn struct {
	stream net.Conn
	config ConnConfig
	logger *slog.Logger

	// writeMu covers one full frame (header + body) so concurrent sessions
	// never interleave bytes on the stream.
	writeMu sync.Mutex

	mu            sync.Mutex
	sessions      map[uint32]chan frame
	firstReply    bool
	singleConnect bool
	closed        bool
	closeErr      error

	readerOnce sync.Once
	done       chan struct{}
}

// NewConn creates a connection multiplexer over stream. The stream must be a
// freshly established TACACS+ connection; the Conn assumes exclusive
// ownership and closes it on any fatal error.
func NewConn(stream net.Conn, config ConnConfig) *Conn {
	if config.MaxBodyLength == 0 {
		config.MaxBodyLength = DefaultMaxBodyLength
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Conn{
		stream:   stream,
		config:   config,
		logger:   logger,
		sessions: make(map[uint32]chan frame),
		done:     make(chan struct{}),
	}
}

// OpenSession allocates a session of the given packet type with a fresh
// random session ID not currently live on this connection, and registers it
// with the reader's routing table.
func (c *Conn) OpenSession(packetType uint8) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, c.closedErrLocked()
	}

	for {
		id, err := generateSessionID(c.config.Random)
		if err != nil {
			return nil, err
		}
		if _, live := c.sessions[id]; live {
			continue
		}

		c.sessions[id] = make(chan frame, 1)
		return NewSessionWithID(id, packetType), nil
	}
}

// CloseSession removes the session from the routing table. Frames for its ID
// arriving afterwards are discarded.
func (c *Conn) CloseSession(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, session.ID())
}

// NewHeader builds a header for the session with the connection's flags
// applied: UNENCRYPTED when no secret is configured and SINGLE_CONNECTION
// when requested. Every packet of a session carries the same flags.
func (c *Conn) NewHeader(session *Session, minorVersion uint8) *Header {
	header := NewHeader(session.PacketType(), minorVersion, session.ID())
	header.SetUnencrypted(len(c.config.Secret) == 0)
	header.SetSingleConnect(c.config.SingleConnect)
	return header
}

// Exchange sends one client packet on the session and awaits the matching
// server reply. The outbound sequence number is drawn from the session; the
// inbound one is validated against it. Cancelling ctx deregisters the
// session: no later frame bearing its ID will be accepted.
//
// Sequence violations and codec errors are fatal to the connection and fail
// every registered session with the same error.
func (c *Conn) Exchange(ctx context.Context, session *Session, header *Header, body Packet) (*Header, Packet, error) {
	c.mu.Lock()
	if c.closed {
		err := c.closedErrLocked()
		c.mu.Unlock()
		return nil, nil, err
	}
	slot, registered := c.sessions[session.ID()]
	c.mu.Unlock()

	if !registered {
		return nil, nil, fmt.Errorf("%w: session %08x not registered", ErrSessionNotFound, session.ID())
	}

	if err := c.send(session, header, body); err != nil {
		return nil, nil, err
	}

	c.readerOnce.Do(func() { go c.readLoop() })

	select {
	case fr := <-slot:
		return c.acceptFrame(session, fr)

	case <-ctx.Done():
		// Deregister so no later frame bearing this ID is accepted. The
		// session itself stays in-flight; a mid-authentication caller may
		// still issue a best-effort CONTINUE with the ABORT flag.
		c.CloseSession(session)
		return nil, nil, ctx.Err()

	case <-c.done:
		session.SetState(SessionStateError)
		return nil, nil, c.closeErr
	}
}

// Send writes one client packet on the session without awaiting a reply.
// It is used for best-effort deliveries such as a CONTINUE with the ABORT
// flag on a cancelled authentication session.
func (c *Conn) Send(session *Session, header *Header, body Packet) error {
	return c.send(session, header, body)
}

func (c *Conn) send(session *Session, header *Header, body Packet) error {
	seqNo, err := session.NextSeqNo()
	if err != nil {
		return err
	}
	header.SeqNo = seqNo
	header.Length = uint32(body.WireSize())

	// One contiguous buffer per frame keeps the write atomic under writeMu.
	buf := make([]byte, HeaderLength+int(header.Length))
	if _, err := header.EncodeTo(buf); err != nil {
		return err
	}
	if _, err := body.EncodeTo(buf[HeaderLength:]); err != nil {
		return err
	}

	ObfuscateInPlace(header, c.config.Secret, buf[HeaderLength:])

	c.writeMu.Lock()
	err = writeAll(c.stream, buf)
	c.writeMu.Unlock()

	if err != nil {
		// A partially written frame poisons the stream for every session.
		c.fatal(fmt.Errorf("write failed: %w", err))
		return err
	}

	return nil
}

// acceptFrame validates a routed frame against the session and parses the
// typed reply.
func (c *Conn) acceptFrame(session *Session, fr frame) (*Header, Packet, error) {
	if fr.header.SessionID != session.ID() {
		err := fmt.Errorf("%w: expected %08x, got %08x", ErrSessionMismatch, session.ID(), fr.header.SessionID)
		c.fatal(err)
		return nil, nil, err
	}

	if err := session.AcceptReply(fr.header.SeqNo); err != nil {
		c.fatal(err)
		return nil, nil, err
	}

	reply, err := ParsePacket(fr.header, fr.body)
	if err != nil {
		c.fatal(err)
		return nil, nil, err
	}

	return fr.header, reply, nil
}

// SingleConnection reports whether the server agreed to single-connection
// mode on its first reply. Until the first reply arrives it returns false.
func (c *Conn) SingleConnection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.singleConnect
}

// Close shuts the connection down, failing all registered sessions with
// ErrConnectionClosed.
func (c *Conn) Close() error {
	c.fatal(ErrConnectionClosed)
	return nil
}

// Err returns the error that closed the connection, or nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		return nil
	}
	return c.closeErr
}

// fatal closes the stream and wakes every waiting exchange with err. The
// first error wins; later calls are no-ops.
func (c *Conn) fatal(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	c.sessions = make(map[uint32]chan frame)
	c.mu.Unlock()

	c.stream.Close()
	close(c.done)
}

func (c *Conn) closedErrLocked() error {
	if c.closeErr != nil && c.closeErr != ErrConnectionClosed {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, c.closeErr)
	}
	return ErrConnectionClosed
}

// readLoop is the connection's single reader task. It reads one frame at a
// time, enforces the obfuscation policy, and routes the frame to its session
// by session ID. Unrouteable frames are logged and discarded.
func (c *Conn) readLoop() {
	for {
		header, body, err := c.readFrame()
		if err != nil {
			if err == io.EOF {
				err = ErrConnectionClosed
			}
			c.fatal(err)
			return
		}

		c.mu.Lock()

		// The single-connection flag is only meaningful on the first server
		// reply; it is latched there. A later frame missing the flag on a
		// latched connection is a protocol violation.
		if !c.firstReply {
			c.firstReply = true
			c.singleConnect = c.config.SingleConnect && header.IsSingleConnect()
		} else if c.singleConnect && !header.IsSingleConnect() {
			c.mu.Unlock()
			c.fatal(fmt.Errorf("%w: session %08x seq %d", ErrSingleConnectRevoked, header.SessionID, header.SeqNo))
			return
		}

		slot, ok := c.sessions[header.SessionID]
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("discarding frame for unknown session",
				slog.String("session_id", fmt.Sprintf("%08x", header.SessionID)),
				slog.Int("seq_no", int(header.SeqNo)))
			continue
		}

		select {
		case slot <- frame{header: header, body: body}:
		default:
			c.logger.Warn("discarding frame for busy session",
				slog.String("session_id", fmt.Sprintf("%08x", header.SessionID)),
				slog.Int("seq_no", int(header.SeqNo)))
		}
	}
}

// readFrame reads and decodes exactly one frame from the stream, including
// deobfuscation of the body.
func (c *Conn) readFrame() (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(c.stream, headerBuf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, nil, fmt.Errorf("%w: truncated header", ErrBufferTooShort)
		}
		return nil, nil, err
	}

	header := &Header{}
	if err := header.UnmarshalBinary(headerBuf); err != nil {
		return nil, nil, err
	}

	if err := header.Validate(); err != nil {
		return nil, nil, err
	}

	if header.Length > c.config.MaxBodyLength {
		return nil, nil, fmt.Errorf("%w: body length %d exceeds maximum %d", ErrBodyTooLarge, header.Length, c.config.MaxBodyLength)
	}

	var body []byte
	if header.Length > 0 {
		body = make([]byte, header.Length)
		if _, err := io.ReadFull(c.stream, body); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return nil, nil, fmt.Errorf("%w: truncated body", ErrBufferTooShort)
			}
			return nil, nil, err
		}
	}

	if header.IsUnencrypted() {
		if len(c.config.Secret) > 0 && !c.config.AllowClearTextReplies {
			return nil, nil, fmt.Errorf("%w: session %08x", ErrUnexpectedClearText, header.SessionID)
		}
	} else if len(c.config.Secret) == 0 {
		return nil, nil, fmt.Errorf("%w: session %08x", ErrUnexpectedObfuscation, header.SessionID)
	}

	ObfuscateInPlace(header, c.config.Secret, body)

	return header, body, nil
}

// writeAll writes the whole of data to w, retrying on short writes.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

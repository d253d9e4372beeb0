package tacplus

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger discards diagnostics so tests stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// serverReadFrame reads one client frame off the server side of a pipe and
// returns the header and deobfuscated body. Errors are reported via t.Error
// since these helpers run in the server goroutine.
func serverReadFrame(t *testing.T, c net.Conn, secret []byte) (*Header, []byte, bool) {
	t.Helper()

	headerBuf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(c, headerBuf); err != nil {
		return nil, nil, false
	}

	header := &Header{}
	if err := header.UnmarshalBinary(headerBuf); err != nil {
		t.Errorf("server: unmarshal header: %v", err)
		return nil, nil, false
	}

	body := make([]byte, header.Length)
	if _, err := io.ReadFull(c, body); err != nil {
		t.Errorf("server: read body: %v", err)
		return nil, nil, false
	}

	return header, Obfuscate(header, secret, body), true
}

// serverWriteReply writes one server frame answering req with the given
// sequence number and flags.
func serverWriteReply(t *testing.T, c net.Conn, secret []byte, req *Header, seqNo, flags uint8, body Packet) {
	t.Helper()

	raw, err := body.MarshalBinary()
	if err != nil {
		t.Errorf("server: marshal reply: %v", err)
		return
	}

	header := &Header{
		Version:   req.Version,
		Type:      PacketType(body),
		SeqNo:     seqNo,
		Flags:     flags,
		SessionID: req.SessionID,
		Length:    uint32(len(raw)),
	}

	headerBuf, err := header.MarshalBinary()
	if err != nil {
		t.Errorf("server: marshal header: %v", err)
		return
	}

	frame := append(headerBuf, Obfuscate(header, secret, raw)...)
	if _, err := c.Write(frame); err != nil {
		t.Errorf("server: write reply: %v", err)
	}
}

// testStart returns a minimal valid authentication START body.
func testStart() *AuthenStart {
	return &AuthenStart{
		Action:     AuthenActionLogin,
		PrivLevel:  PrivLevelUser,
		AuthenType: AuthenTypePAP,
		Service:    AuthenServiceLogin,
		User:       []byte("u"),
	}
}

func newTestConn(t *testing.T, config ConnConfig) (*Conn, net.Conn) {
	t.Helper()

	clientEnd, serverEnd := net.Pipe()
	if config.Logger == nil {
		config.Logger = testLogger()
	}

	conn := NewConn(clientEnd, config)
	t.Cleanup(func() { conn.Close() })
	t.Cleanup(func() { serverEnd.Close() })

	return conn, serverEnd
}

func TestConnExchange(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

	go func() {
		req, body, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}

		start := &AuthenStart{}
		if err := start.UnmarshalBinary(body); err != nil {
			t.Errorf("server: parse START: %v", err)
			return
		}
		assert.Equal(t, "someuser", string(start.User))

		serverWriteReply(t, serverEnd, secret, req, 2, req.Flags, &AuthenReply{
			Status:    AuthenStatusPass,
			ServerMsg: []byte("welcome"),
		})
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session, MinorVersionOne)
	assert.False(t, header.IsUnencrypted())

	start := &AuthenStart{
		Action:     AuthenActionLogin,
		PrivLevel:  PrivLevelUser,
		AuthenType: AuthenTypePAP,
		Service:    AuthenServiceLogin,
		User:       []byte("someuser"),
		Data:       []byte("hunter2"),
	}

	respHeader, reply, err := conn.Exchange(context.Background(), session, header, start)
	require.NoError(t, err)

	assert.Equal(t, uint8(2), respHeader.SeqNo)
	assert.Equal(t, session.ID(), respHeader.SessionID)

	authenReply, ok := reply.(*AuthenReply)
	require.True(t, ok)
	assert.True(t, authenReply.IsPass())
	assert.Equal(t, "welcome", string(authenReply.ServerMsg))
}

func TestConnExchangeWithoutSecret(t *testing.T) {
	conn, serverEnd := newTestConn(t, ConnConfig{})

	go func() {
		req, _, ok := serverReadFrame(t, serverEnd, nil)
		if !ok {
			return
		}
		assert.True(t, req.IsUnencrypted())

		serverWriteReply(t, serverEnd, nil, req, 2, req.Flags, &AuthenReply{Status: AuthenStatusPass})
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session, MinorVersionOne)
	assert.True(t, header.IsUnencrypted())

	_, reply, err := conn.Exchange(context.Background(), session, header, testStart())
	require.NoError(t, err)
	assert.True(t, reply.(*AuthenReply).IsPass())
}

func TestConnSequenceViolation(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

	go func() {
		req, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}

		// Reply with sequence 4 where 2 is expected
		serverWriteReply(t, serverEnd, secret, req, 4, req.Flags, &AuthenReply{Status: AuthenStatusPass})
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session, MinorVersionOne)
	_, _, err = conn.Exchange(context.Background(), session, header, testStart())
	require.ErrorIs(t, err, ErrInvalidSequence)

	// The violation is fatal to the connection
	assert.ErrorIs(t, conn.Err(), ErrInvalidSequence)

	_, err = conn.OpenSession(PacketTypeAuthor)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnUnknownSessionDiscarded(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

	go func() {
		req, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}

		// A frame for an unknown session is logged and discarded
		stray := &Header{
			Version:   req.Version,
			Type:      req.Type,
			SeqNo:     2,
			Flags:     req.Flags,
			SessionID: req.SessionID ^ 0xffffffff,
		}
		serverWriteReply(t, serverEnd, secret, stray, 2, req.Flags, &AuthenReply{Status: AuthenStatusFail})

		serverWriteReply(t, serverEnd, secret, req, 2, req.Flags, &AuthenReply{Status: AuthenStatusPass})
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session, MinorVersionOne)
	_, reply, err := conn.Exchange(context.Background(), session, header, testStart())
	require.NoError(t, err)
	assert.True(t, reply.(*AuthenReply).IsPass())
	assert.NoError(t, conn.Err())
}

func TestConnObfuscationPolicy(t *testing.T) {
	t.Run("clear-text reply with secret configured", func(t *testing.T) {
		secret := []byte("testsecret")
		conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

		go func() {
			req, _, ok := serverReadFrame(t, serverEnd, secret)
			if !ok {
				return
			}
			serverWriteReply(t, serverEnd, nil, req, 2, req.Flags|FlagUnencrypted, &AuthenReply{Status: AuthenStatusPass})
		}()

		session, err := conn.OpenSession(PacketTypeAuthen)
		require.NoError(t, err)

		header := conn.NewHeader(session, MinorVersionOne)
		_, _, err = conn.Exchange(context.Background(), session, header, testStart())
		require.ErrorIs(t, err, ErrUnexpectedClearText)
		assert.ErrorIs(t, conn.Err(), ErrUnexpectedClearText)
	})

	t.Run("clear-text reply explicitly allowed", func(t *testing.T) {
		secret := []byte("testsecret")
		conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret, AllowClearTextReplies: true})

		go func() {
			req, _, ok := serverReadFrame(t, serverEnd, secret)
			if !ok {
				return
			}
			serverWriteReply(t, serverEnd, nil, req, 2, req.Flags|FlagUnencrypted, &AuthenReply{Status: AuthenStatusPass})
		}()

		session, err := conn.OpenSession(PacketTypeAuthen)
		require.NoError(t, err)

		header := conn.NewHeader(session, MinorVersionOne)
		_, reply, err := conn.Exchange(context.Background(), session, header, testStart())
		require.NoError(t, err)
		assert.True(t, reply.(*AuthenReply).IsPass())
	})

	t.Run("obfuscated reply without secret configured", func(t *testing.T) {
		conn, serverEnd := newTestConn(t, ConnConfig{})

		go func() {
			req, _, ok := serverReadFrame(t, serverEnd, nil)
			if !ok {
				return
			}
			// Reply without the UNENCRYPTED flag on a secretless connection
			serverWriteReply(t, serverEnd, []byte("surprise"), req, 2, 0, &AuthenReply{Status: AuthenStatusPass})
		}()

		session, err := conn.OpenSession(PacketTypeAuthen)
		require.NoError(t, err)

		header := conn.NewHeader(session, MinorVersionOne)
		_, _, err = conn.Exchange(context.Background(), session, header, testStart())
		require.ErrorIs(t, err, ErrUnexpectedObfuscation)
	})
}

func TestConnSingleConnectionMultiplex(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret, SingleConnect: true})

	// The server reads both requests before answering, then replies in
	// reverse order: inter-session ordering is not guaranteed.
	go func() {
		req1, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}
		req2, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}

		serverWriteReply(t, serverEnd, secret, req2, 2, FlagSingleConnect, &AuthorResponse{Status: AuthorStatusPassAdd})
		serverWriteReply(t, serverEnd, secret, req1, 2, FlagSingleConnect, &AuthenReply{Status: AuthenStatusPass})
	}()

	authenSession, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)
	authorSession, err := conn.OpenSession(PacketTypeAuthor)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	var authenReply, authorReply Packet
	var authenErr, authorErr error

	go func() {
		defer wg.Done()
		header := conn.NewHeader(authenSession, MinorVersionOne)
		_, authenReply, authenErr = conn.Exchange(context.Background(), authenSession, header, testStart())
	}()

	// Give the first exchange a head start so frame order on the pipe is
	// deterministic for the server script.
	time.Sleep(50 * time.Millisecond)

	go func() {
		defer wg.Done()
		header := conn.NewHeader(authorSession, MinorVersionDefault)
		_, authorReply, authorErr = conn.Exchange(context.Background(), authorSession, header, &AuthorRequest{User: []byte("u")})
	}()

	wg.Wait()

	require.NoError(t, authenErr)
	require.NoError(t, authorErr)
	assert.True(t, authenReply.(*AuthenReply).IsPass())
	assert.True(t, authorReply.(*AuthorResponse).IsPass())
	assert.True(t, conn.SingleConnection())
}

func TestConnSingleConnectRevoked(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret, SingleConnect: true})

	go func() {
		req1, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}
		serverWriteReply(t, serverEnd, secret, req1, 2, FlagSingleConnect, &AuthenReply{Status: AuthenStatusPass})

		req2, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}
		// Second reply drops the SINGLE_CONNECTION flag after it was latched
		serverWriteReply(t, serverEnd, secret, req2, 2, 0, &AuthorResponse{Status: AuthorStatusPassAdd})
	}()

	session1, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session1, MinorVersionOne)
	_, _, err = conn.Exchange(context.Background(), session1, header, testStart())
	require.NoError(t, err)
	require.True(t, conn.SingleConnection())
	conn.CloseSession(session1)

	session2, err := conn.OpenSession(PacketTypeAuthor)
	require.NoError(t, err)

	header = conn.NewHeader(session2, MinorVersionDefault)
	_, _, err = conn.Exchange(context.Background(), session2, header, &AuthorRequest{User: []byte("u")})
	require.ErrorIs(t, err, ErrSingleConnectRevoked)
	assert.ErrorIs(t, conn.Err(), ErrSingleConnectRevoked)
}

func TestConnExchangeCancellation(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

	served := make(chan *Header, 1)
	go func() {
		req, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}
		served <- req

		// Reply only after the client has given up; the frame must be
		// discarded, not delivered.
		time.Sleep(200 * time.Millisecond)
		serverWriteReply(t, serverEnd, secret, req, 2, req.Flags, &AuthenReply{Status: AuthenStatusPass})
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	header := conn.NewHeader(session, MinorVersionOne)
	_, _, err = conn.Exchange(ctx, session, header, testStart())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	<-served

	// The late reply is unrouteable and discarded; the connection survives
	time.Sleep(300 * time.Millisecond)
	assert.NoError(t, conn.Err())
}

func TestConnOpenSessionUniqueIDs(t *testing.T) {
	conn, _ := newTestConn(t, ConnConfig{Secret: []byte("s")})

	seen := make(map[uint32]bool)
	for i := 0; i < 32; i++ {
		session, err := conn.OpenSession(PacketTypeAcct)
		require.NoError(t, err)
		require.False(t, seen[session.ID()], "duplicate session ID")
		seen[session.ID()] = true
	}
}

func TestConnCloseFailsSessions(t *testing.T) {
	secret := []byte("testsecret")
	conn, serverEnd := newTestConn(t, ConnConfig{Secret: secret})

	go func() {
		// Swallow the request and hang up without replying
		_, _, ok := serverReadFrame(t, serverEnd, secret)
		if !ok {
			return
		}
		serverEnd.Close()
	}()

	session, err := conn.OpenSession(PacketTypeAuthen)
	require.NoError(t, err)

	header := conn.NewHeader(session, MinorVersionOne)
	_, _, err = conn.Exchange(context.Background(), session, header, testStart())
	require.ErrorIs(t, err, ErrConnectionClosed)
}

package tacplus

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Client is a TACACS+ client. It dials the server lazily, multiplexes
// sessions over a single connection when the server agrees to
// single-connection mode, and re-dials when a previous connection was closed
// after a one-shot exchange.
type Client struct {
	mu      sync.Mutex
	address string
	secret  []byte
	dialer  Dialer
	conn    *Conn

	timeout        time.Duration
	singleConnect  bool
	allowClearText bool
	maxBodyLength  uint32
	random         io.Reader
	logger         *slog.Logger
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the connection timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithSecret sets the shared secret for packet obfuscation.
func WithSecret(secret string) ClientOption {
	return func(c *Client) {
		c.secret = []byte(secret)
	}
}

// WithSecretBytes sets the shared secret as bytes for packet obfuscation.
func WithSecretBytes(secret []byte) ClientOption {
	return func(c *Client) {
		c.secret = secret
	}
}

// WithAllowClearTextReplies accepts clear-text replies even when a secret is
// configured. Defaults to false.
func WithAllowClearTextReplies(allowed bool) ClientOption {
	return func(c *Client) {
		c.allowClearText = allowed
	}
}

// WithSingleConnect requests single-connection mode on the first client
// packet of each fresh connection.
func WithSingleConnect(enabled bool) ClientOption {
	return func(c *Client) {
		c.singleConnect = enabled
	}
}

// WithTLSConfig sets the TLS configuration for secure connections.
func WithTLSConfig(config *tls.Config) ClientOption {
	return func(c *Client) {
		c.dialer = &TLSDialer{
			Timeout: c.timeout,
			Config:  config,
		}
	}
}

// WithDialer sets a custom dialer for connections.
// If dialer is nil, the default TCP dialer is retained.
func WithDialer(dialer Dialer) ClientOption {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithRandom sets the source of session IDs and CHAP challenges.
// If random is nil, crypto/rand is retained.
func WithRandom(random io.Reader) ClientOption {
	return func(c *Client) {
		if random != nil {
			c.random = random
		}
	}
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxBodyLength sets the maximum allowed body length for incoming
// packets. This prevents memory exhaustion attacks from malicious servers.
func WithMaxBodyLength(maxLength uint32) ClientOption {
	return func(c *Client) {
		c.maxBodyLength = maxLength
	}
}

// NewClient creates a new TACACS+ client for the given server address.
func NewClient(address string, opts ...ClientOption) *Client {
	c := &Client{
		address:       address,
		timeout:       30 * time.Second,
		dialer:        DefaultTCPDialer(),
		maxBodyLength: DefaultMaxBodyLength,
		random:        rand.Reader,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Update dialer timeout after all options are applied
	switch d := c.dialer.(type) {
	case *TCPDialer:
		d.Timeout = c.timeout
	case *TLSDialer:
		d.Timeout = c.timeout
	}

	return c
}

// Address returns the server address.
func (c *Client) Address() string {
	return c.address
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	return err
}

// acquireConn returns the live connection, dialing a fresh one when the
// previous connection was closed or never existed.
func (c *Client) acquireConn(ctx context.Context) (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Err() == nil {
		return c.conn, nil
	}

	stream, err := c.dialer.Dial(ctx, "tcp", c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.address, err)
	}

	c.conn = NewConn(stream, ConnConfig{
		Secret:                c.secret,
		AllowClearTextReplies: c.allowClearText,
		SingleConnect:         c.singleConnect,
		MaxBodyLength:         c.maxBodyLength,
		Random:                c.random,
		Logger:                c.logger,
	})

	return c.conn, nil
}

// finishSession deregisters the session and, when the server did not agree
// to single-connection mode, closes the connection so the next exchange
// re-dials.
func (c *Client) finishSession(conn *Conn, session *Session) {
	conn.CloseSession(session)

	if !conn.SingleConnection() {
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}
}

// AuthenticateContext holds the caller-supplied fields of an authentication
// session.
type AuthenticateContext struct {
	Username   string
	Password   string
	Port       string
	RemoteAddr string
	PrivLevel  uint8
	Service    uint8
}

// Authenticate performs PAP authentication with the TACACS+ server using the
// login service at user privilege level.
//
// A nil error does not mean the authentication passed; check the status of
// the returned reply.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*AuthenReply, error) {
	return c.AuthenticateWithContext(ctx, &AuthenticateContext{
		Username:  username,
		Password:  password,
		PrivLevel: PrivLevelUser,
		Service:   AuthenServiceLogin,
	})
}

// AuthenticateWithContext performs PAP authentication with full control over
// the session fields. PAP carries the password in the START data and uses
// minor version 1.
func (c *Client) AuthenticateWithContext(ctx context.Context, authCtx *AuthenticateContext) (*AuthenReply, error) {
	if authCtx == nil {
		return nil, fmt.Errorf("%w: authCtx cannot be nil", ErrInvalidPacket)
	}

	start := &AuthenStart{
		Action:     AuthenActionLogin,
		PrivLevel:  authCtx.PrivLevel,
		AuthenType: AuthenTypePAP,
		Service:    authCtx.Service,
		User:       []byte(authCtx.Username),
		Port:       []byte(authCtx.Port),
		RemoteAddr: []byte(authCtx.RemoteAddr),
		Data:       []byte(authCtx.Password), // PAP sends the password in START
	}

	return c.authenticateStart(ctx, start, MinorVersionOne)
}

// AuthenticateCHAP performs CHAP authentication. The client picks a PPP ID
// octet and a random 16-byte challenge, computes the RFC1994 response
// MD5(id + password + challenge), and sends id + challenge + response as the
// START data with minor version 1, per RFC8907 Section 5.4.2.3.
func (c *Client) AuthenticateCHAP(ctx context.Context, authCtx *AuthenticateContext) (*AuthenReply, error) {
	if authCtx == nil {
		return nil, fmt.Errorf("%w: authCtx cannot be nil", ErrInvalidPacket)
	}

	var raw [17]byte // ppp id + challenge
	if _, err := io.ReadFull(c.random, raw[:]); err != nil {
		return nil, fmt.Errorf("failed to generate CHAP challenge: %w", err)
	}

	pppID := raw[0]
	challenge := raw[1:]

	h := md5.New()
	h.Write([]byte{pppID})
	h.Write([]byte(authCtx.Password))
	h.Write(challenge)
	response := h.Sum(nil)

	data := make([]byte, 0, 1+len(challenge)+md5.Size)
	data = append(data, pppID)
	data = append(data, challenge...)
	data = append(data, response...)

	start := &AuthenStart{
		Action:     AuthenActionLogin,
		PrivLevel:  authCtx.PrivLevel,
		AuthenType: AuthenTypeCHAP,
		Service:    authCtx.Service,
		User:       []byte(authCtx.Username),
		Port:       []byte(authCtx.Port),
		RemoteAddr: []byte(authCtx.RemoteAddr),
		Data:       data,
	}

	return c.authenticateStart(ctx, start, MinorVersionOne)
}

// authenticateStart drives a single-round authentication exchange: one START
// followed by one terminal REPLY.
func (c *Client) authenticateStart(ctx context.Context, start *AuthenStart, minorVersion uint8) (*AuthenReply, error) {
	conn, err := c.acquireConn(ctx)
	if err != nil {
		return nil, err
	}

	session, err := conn.OpenSession(PacketTypeAuthen)
	if err != nil {
		return nil, err
	}
	defer c.finishSession(conn, session)

	header := conn.NewHeader(session, minorVersion)

	_, reply, err := conn.Exchange(ctx, session, header, start)
	if err != nil {
		return nil, err
	}

	authenReply, ok := reply.(*AuthenReply)
	if !ok {
		err := fmt.Errorf("%w: expected authentication REPLY", ErrUnexpectedPacket)
		conn.fatal(err)
		return nil, err
	}

	return c.settleAuthenReply(session, authenReply)
}

// settleAuthenReply maps a terminal authentication reply onto the session
// state and the semantic outcomes surfaced to the caller.
func (c *Client) settleAuthenReply(session *Session, reply *AuthenReply) (*AuthenReply, error) {
	switch reply.Status {
	case AuthenStatusPass:
		session.SetState(SessionStateComplete)
		return reply, nil
	case AuthenStatusFail:
		session.SetState(SessionStateComplete)
		return reply, nil
	case AuthenStatusError:
		session.SetState(SessionStateError)
		return reply, nil
	case AuthenStatusFollow:
		session.SetState(SessionStateComplete)
		return reply, fmt.Errorf("%w: %s", ErrAuthenFollow, string(reply.ServerMsg))
	case AuthenStatusRestart:
		session.SetState(SessionStateComplete)
		return reply, ErrAuthenRestart
	default:
		session.SetState(SessionStateError)
		return reply, fmt.Errorf("%w: authentication status %d", ErrUnexpectedPacket, reply.Status)
	}
}

// PromptHandler supplies the datum requested by an interactive
// authentication reply. prompt is the server message and noEcho reports
// whether the input should be hidden. Returning an error aborts the session.
type PromptHandler func(prompt string, noEcho bool) (string, error)

// AuthenticateASCII performs interactive ASCII authentication. The server
// drives the dialog through GETUSER/GETPASS/GETDATA replies; promptHandler
// is called for each and its answer is sent in a CONTINUE. If the handler
// or the context fails mid-session, a best-effort CONTINUE with the ABORT
// flag is issued before the session is torn down.
func (c *Client) AuthenticateASCII(ctx context.Context, username string, promptHandler PromptHandler) (*AuthenReply, error) {
	conn, err := c.acquireConn(ctx)
	if err != nil {
		return nil, err
	}

	session, err := conn.OpenSession(PacketTypeAuthen)
	if err != nil {
		return nil, err
	}
	defer c.finishSession(conn, session)

	header := conn.NewHeader(session, MinorVersionDefault)

	start := &AuthenStart{
		Action:     AuthenActionLogin,
		PrivLevel:  PrivLevelUser,
		AuthenType: AuthenTypeASCII,
		Service:    AuthenServiceLogin,
		User:       []byte(username),
	}

	var outbound Packet = start
	for {
		_, reply, err := conn.Exchange(ctx, session, header, outbound)
		if err != nil {
			if ctx.Err() != nil {
				c.abortSession(conn, session, header, "request cancelled")
			}
			return nil, err
		}

		authenReply, ok := reply.(*AuthenReply)
		if !ok {
			err := fmt.Errorf("%w: expected authentication REPLY", ErrUnexpectedPacket)
			conn.fatal(err)
			return nil, err
		}

		if !authenReply.NeedsInput() {
			return c.settleAuthenReply(session, authenReply)
		}

		session.SetState(SessionStateAwaitingInput)

		answer, err := promptHandler(string(authenReply.ServerMsg), authenReply.NoEcho())
		if err != nil {
			c.abortSession(conn, session, header, err.Error())
			return nil, fmt.Errorf("%w: %w", ErrSessionAborted, err)
		}

		outbound = &AuthenContinue{UserMsg: []byte(answer)}
	}
}

// abortSession delivers a best-effort CONTINUE with the ABORT flag and marks
// the session dead. Delivery failures are ignored; the connection is about
// to be torn down regardless.
func (c *Client) abortSession(conn *Conn, session *Session, header *Header, reason string) {
	abort := &AuthenContinue{
		Flags: AuthenContinueFlagAbort,
		Data:  []byte(reason),
	}
	_ = conn.Send(session, header, abort)
	session.SetState(SessionStateError)
}

// Authorize performs authorization with the TACACS+ server. The returned
// response carries the server's argument list; a FAIL status is a semantic
// outcome, not an error.
func (c *Client) Authorize(ctx context.Context, username string, args []Argument) (*AuthorResponse, error) {
	req := &AuthorRequest{
		AuthenMethod: AuthenMethodTACACSPlus,
		PrivLevel:    PrivLevelUser,
		AuthenType:   AuthenTypeASCII,
		Service:      AuthenServiceLogin,
		User:         []byte(username),
		Args:         args,
	}
	return c.AuthorizeRequest(ctx, req)
}

// AuthorizeRequest performs authorization with full control over the request
// fields.
func (c *Client) AuthorizeRequest(ctx context.Context, req *AuthorRequest) (*AuthorResponse, error) {
	conn, err := c.acquireConn(ctx)
	if err != nil {
		return nil, err
	}

	session, err := conn.OpenSession(PacketTypeAuthor)
	if err != nil {
		return nil, err
	}
	defer c.finishSession(conn, session)

	header := conn.NewHeader(session, MinorVersionDefault)

	_, reply, err := conn.Exchange(ctx, session, header, req)
	if err != nil {
		return nil, err
	}

	resp, ok := reply.(*AuthorResponse)
	if !ok {
		err := fmt.Errorf("%w: expected authorization RESPONSE", ErrUnexpectedPacket)
		conn.fatal(err)
		return nil, err
	}

	if resp.IsPass() {
		session.SetState(SessionStateComplete)
	} else {
		session.SetState(SessionStateError)
	}

	return resp, nil
}

// Accounting sends an accounting record with the given flags (START, STOP,
// WATCHDOG or a RFC-permitted combination).
func (c *Client) Accounting(ctx context.Context, flags uint8, username string, args []Argument) (*AcctReply, error) {
	req := &AcctRequest{
		Flags:        flags,
		AuthenMethod: AuthenMethodTACACSPlus,
		PrivLevel:    PrivLevelUser,
		AuthenType:   AuthenTypeNotSet,
		Service:      AuthenServiceLogin,
		User:         []byte(username),
		Args:         args,
	}
	return c.AccountingRequest(ctx, req)
}

// AccountingRequest sends an accounting record with full control over the
// request fields.
func (c *Client) AccountingRequest(ctx context.Context, req *AcctRequest) (*AcctReply, error) {
	conn, err := c.acquireConn(ctx)
	if err != nil {
		return nil, err
	}

	session, err := conn.OpenSession(PacketTypeAcct)
	if err != nil {
		return nil, err
	}
	defer c.finishSession(conn, session)

	header := conn.NewHeader(session, MinorVersionDefault)

	_, reply, err := conn.Exchange(ctx, session, header, req)
	if err != nil {
		return nil, err
	}

	acctReply, ok := reply.(*AcctReply)
	if !ok {
		err := fmt.Errorf("%w: expected accounting REPLY", ErrUnexpectedPacket)
		conn.fatal(err)
		return nil, err
	}

	if acctReply.IsSuccess() {
		session.SetState(SessionStateComplete)
	} else {
		session.SetState(SessionStateError)
	}

	return acctReply, nil
}

// AccountingStart sends a START accounting record.
func (c *Client) AccountingStart(ctx context.Context, username string, args []Argument) (*AcctReply, error) {
	return c.Accounting(ctx, AcctFlagStart, username, args)
}

// AccountingStop sends a STOP accounting record.
func (c *Client) AccountingStop(ctx context.Context, username string, args []Argument) (*AcctReply, error) {
	return c.Accounting(ctx, AcctFlagStop, username, args)
}

// AccountingWatchdog sends a WATCHDOG accounting record.
func (c *Client) AccountingWatchdog(ctx context.Context, username string, args []Argument) (*AcctReply, error) {
	return c.Accounting(ctx, AcctFlagWatchdog, username, args)
}

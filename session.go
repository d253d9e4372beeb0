package tacplus

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"
)

// SessionState represents the current state of a client session.
type SessionState uint8

const (
	// SessionStateIdle indicates a session that has not sent its first packet.
	SessionStateIdle SessionState = iota

	// SessionStateInFlight indicates a request has been sent and the session
	// is waiting for the server's reply.
	SessionStateInFlight

	// SessionStateAwaitingInput indicates an authentication session waiting
	// for the caller to supply data requested by the server (GETDATA,
	// GETUSER or GETPASS).
	SessionStateAwaitingInput

	// SessionStateComplete indicates a session that reached a terminal reply.
	SessionStateComplete

	// SessionStateError indicates a session that ended with an error.
	SessionStateError
)

// String returns a string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "IDLE"
	case SessionStateInFlight:
		return "IN_FLIGHT"
	case SessionStateAwaitingInput:
		return "AWAITING_INPUT"
	case SessionStateComplete:
		return "COMPLETE"
	case SessionStateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Session represents one logical AAA exchange. It owns the 32-bit session ID
// and the sequence counter, and enforces the client-odd/server-even sequence
// discipline of RFC8907 Section 4.1.
type Session struct {
	mu           sync.RWMutex
	id           uint32
	packetType   uint8
	state        SessionState
	seqNo        uint8
	created      time.Time
	lastActivity time.Time
}

// NewSession creates a session of the given packet type with a session ID
// drawn from random. If random is nil, crypto/rand is used.
func NewSession(packetType uint8, random io.Reader) (*Session, error) {
	id, err := generateSessionID(random)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	return NewSessionWithID(id, packetType), nil
}

// NewSessionWithID creates a session with the specified session ID.
func NewSessionWithID(id uint32, packetType uint8) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		packetType:   packetType,
		state:        SessionStateIdle,
		seqNo:        0,
		created:      now,
		lastActivity: now,
	}
}

// ID returns the session ID.
func (s *Session) ID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// PacketType returns the packet type this session exchanges.
func (s *Session) PacketType() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packetType
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState sets the session state.
func (s *Session) SetState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastActivity = time.Now()
}

// SeqNo returns the last sequence number seen on this session.
func (s *Session) SeqNo() uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seqNo
}

// NextSeqNo returns the next client sequence number (1, 3, 5, ...) and
// advances the counter. Returns ErrSequenceOverflow once the counter can no
// longer advance without wrapping past 255; the session must then be closed.
func (s *Session) NextSeqNo() (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionStateComplete || s.state == SessionStateError {
		return 0, fmt.Errorf("%w: session is %s", ErrUnexpectedPacket, s.state)
	}

	if s.seqNo == 0 {
		s.seqNo = 1
	} else {
		// After a server reply (even) the next client packet is reply+1;
		// after an unanswered client packet (odd) it is that packet+2.
		next := int(s.seqNo) + 1
		if next%2 == 0 {
			next++
		}
		if next >= 255 {
			s.state = SessionStateError
			return 0, ErrSequenceOverflow
		}
		s.seqNo = uint8(next)
	}

	s.state = SessionStateInFlight
	s.lastActivity = time.Now()

	return s.seqNo, nil
}

// AcceptReply validates an incoming server sequence number against the
// session's counter. Server replies carry the increment of the last client
// packet, so the expected value is always seqNo+1 and even. On success the
// counter advances to the reply's sequence number.
func (s *Session) AcceptReply(seqNo uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionStateInFlight {
		return fmt.Errorf("%w: reply while session is %s", ErrUnexpectedPacket, s.state)
	}

	if seqNo == 0 {
		return fmt.Errorf("%w: sequence number cannot be 0", ErrInvalidSequence)
	}

	if seqNo%2 != 0 || seqNo != s.seqNo+1 {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidSequence, s.seqNo+1, seqNo)
	}

	s.seqNo = seqNo
	s.lastActivity = time.Now()

	return nil
}

// Created returns the time when the session was created.
func (s *Session) Created() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created
}

// LastActivity returns the time of the last activity on this session.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Done returns true if the session reached a terminal state.
func (s *Session) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == SessionStateComplete || s.state == SessionStateError
}

// generateSessionID draws a 32-bit session ID from random, falling back to
// crypto/rand when random is nil.
func generateSessionID(random io.Reader) (uint32, error) {
	if random == nil {
		random = rand.Reader
	}

	var buf [4]byte
	if _, err := io.ReadFull(random, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

package tacplus

import (
	"encoding/binary"
	"fmt"
)

// AuthenStart represents a TACACS+ authentication START packet as defined in
// RFC8907 Section 5.1. This packet is sent by the client to initiate an
// authentication session.
type AuthenStart struct {
	Action     uint8  // Authentication action (LOGIN, CHPASS, SENDAUTH)
	PrivLevel  uint8  // Privilege level
	AuthenType uint8  // Authentication type (ASCII, PAP, CHAP, etc.)
	Service    uint8  // Authentication service (LOGIN, ENABLE, etc.)
	User       []byte // Username (optional)
	Port       []byte // Port identifier (optional)
	RemoteAddr []byte // Remote address (optional)
	Data       []byte // Authentication data (optional)
}

// NewAuthenStart creates a new AuthenStart packet with the specified parameters.
func NewAuthenStart(action, authenType, service uint8, user string) *AuthenStart {
	return &AuthenStart{
		Action:     action,
		PrivLevel:  PrivLevelUser,
		AuthenType: authenType,
		Service:    service,
		User:       []byte(user),
	}
}

// WireSize returns the encoded length of the START body.
func (p *AuthenStart) WireSize() int {
	return 8 + len(p.User) + len(p.Port) + len(p.RemoteAddr) + len(p.Data)
}

// validate checks the enum-valued fields against their RFC8907 value sets.
func (p *AuthenStart) validate() error {
	if err := checkAuthenAction(p.Action); err != nil {
		return err
	}
	if err := checkPrivLevel(p.PrivLevel); err != nil {
		return err
	}
	if err := checkAuthenType(p.AuthenType); err != nil {
		return err
	}
	return checkAuthenService(p.Service)
}

// EncodeTo encodes the AuthenStart packet into buf.
func (p *AuthenStart) EncodeTo(buf []byte) (int, error) {
	userLen := len(p.User)
	portLen := len(p.Port)
	remAddrLen := len(p.RemoteAddr)
	dataLen := len(p.Data)

	if userLen > 255 || portLen > 255 || remAddrLen > 255 || dataLen > 255 {
		return 0, fmt.Errorf("%w: field length exceeds 255 bytes", ErrInvalidPacket)
	}

	if err := p.validate(); err != nil {
		return 0, err
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	buf[0] = p.Action
	buf[1] = p.PrivLevel
	buf[2] = p.AuthenType
	buf[3] = p.Service
	buf[4] = uint8(userLen)
	buf[5] = uint8(portLen)
	buf[6] = uint8(remAddrLen)
	buf[7] = uint8(dataLen)

	offset := 8
	offset += copy(buf[offset:], p.User)
	offset += copy(buf[offset:], p.Port)
	offset += copy(buf[offset:], p.RemoteAddr)
	offset += copy(buf[offset:], p.Data)

	return offset, nil
}

// MarshalBinary encodes the AuthenStart packet to binary format.
func (p *AuthenStart) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AuthenStart packet from binary format.
// Variable-length fields borrow sub-slices of data.
func (p *AuthenStart) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: need at least 8 bytes, got %d", ErrBufferTooShort, len(data))
	}

	p.Action = data[0]
	p.PrivLevel = data[1]
	p.AuthenType = data[2]
	p.Service = data[3]

	userLen := int(data[4])
	portLen := int(data[5])
	remAddrLen := int(data[6])
	dataLen := int(data[7])

	expectedLen := 8 + userLen + portLen + remAddrLen + dataLen
	if len(data) < expectedLen {
		if isBadSecretError(len(data), expectedLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, expectedLen, len(data))
		}
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, expectedLen, len(data))
	}

	// Structural checks come first: a wrong pad usually shows up as
	// impossible lengths before it shows up as an impossible enum octet.
	if err := p.validate(); err != nil {
		return err
	}

	offset := 8
	p.User = fieldSlice(data, offset, userLen)
	offset += userLen
	p.Port = fieldSlice(data, offset, portLen)
	offset += portLen
	p.RemoteAddr = fieldSlice(data, offset, remAddrLen)
	offset += remAddrLen
	p.Data = fieldSlice(data, offset, dataLen)

	return nil
}

// AuthenReply represents a TACACS+ authentication REPLY packet as defined in
// RFC8907 Section 5.2. This packet is sent by the server in response to
// START or CONTINUE packets.
type AuthenReply struct {
	Status    uint8  // Authentication status (PASS, FAIL, GETDATA, etc.)
	Flags     uint8  // Reply flags (NOECHO)
	ServerMsg []byte // Server message to display (optional)
	Data      []byte // Authentication data (optional)
}

// NewAuthenReply creates a new AuthenReply packet with the specified status.
func NewAuthenReply(status uint8) *AuthenReply {
	return &AuthenReply{
		Status: status,
	}
}

// WireSize returns the encoded length of the REPLY body.
func (p *AuthenReply) WireSize() int {
	return 6 + len(p.ServerMsg) + len(p.Data)
}

// EncodeTo encodes the AuthenReply packet into buf.
func (p *AuthenReply) EncodeTo(buf []byte) (int, error) {
	serverMsgLen := len(p.ServerMsg)
	dataLen := len(p.Data)

	if serverMsgLen > 65535 || dataLen > 65535 {
		return 0, fmt.Errorf("%w: field length exceeds 65535 bytes", ErrInvalidPacket)
	}

	if err := checkAuthenStatus(p.Status); err != nil {
		return 0, err
	}

	// Unknown flag bits are preserved on decode but rejected on encode
	if p.Flags&^uint8(AuthenReplyFlagNoEcho) != 0 {
		return 0, invalidEnum("flags", p.Flags)
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	buf[0] = p.Status
	buf[1] = p.Flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(serverMsgLen))
	binary.BigEndian.PutUint16(buf[4:6], uint16(dataLen))

	offset := 6
	offset += copy(buf[offset:], p.ServerMsg)
	offset += copy(buf[offset:], p.Data)

	return offset, nil
}

// MarshalBinary encodes the AuthenReply packet to binary format.
func (p *AuthenReply) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AuthenReply packet from binary format.
// Variable-length fields borrow sub-slices of data.
func (p *AuthenReply) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: need at least 6 bytes, got %d", ErrBufferTooShort, len(data))
	}

	p.Status = data[0]
	p.Flags = data[1]
	serverMsgLen := int(binary.BigEndian.Uint16(data[2:4]))
	dataLen := int(binary.BigEndian.Uint16(data[4:6]))

	expectedLen := 6 + serverMsgLen + dataLen
	if len(data) < expectedLen {
		if isBadSecretError(len(data), expectedLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, expectedLen, len(data))
		}
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, expectedLen, len(data))
	}

	if err := checkAuthenStatus(p.Status); err != nil {
		return err
	}

	offset := 6
	p.ServerMsg = fieldSlice(data, offset, serverMsgLen)
	offset += serverMsgLen
	p.Data = fieldSlice(data, offset, dataLen)

	return nil
}

// IsPass returns true if the status indicates authentication passed.
func (p *AuthenReply) IsPass() bool {
	return p.Status == AuthenStatusPass
}

// IsFail returns true if the status indicates authentication failed.
func (p *AuthenReply) IsFail() bool {
	return p.Status == AuthenStatusFail
}

// IsError returns true if the status indicates an error occurred.
func (p *AuthenReply) IsError() bool {
	return p.Status == AuthenStatusError
}

// NeedsInput returns true if the server is requesting more input.
func (p *AuthenReply) NeedsInput() bool {
	return p.Status == AuthenStatusGetData ||
		p.Status == AuthenStatusGetUser ||
		p.Status == AuthenStatusGetPass
}

// NoEcho returns true if the NOECHO flag is set.
func (p *AuthenReply) NoEcho() bool {
	return p.Flags&AuthenReplyFlagNoEcho != 0
}

// AuthenContinue represents a TACACS+ authentication CONTINUE packet as
// defined in RFC8907 Section 5.3. This packet is sent by the client in
// response to a REPLY requesting more data.
type AuthenContinue struct {
	Flags   uint8  // Continue flags (ABORT)
	UserMsg []byte // User message/response (optional)
	Data    []byte // Authentication data (optional)
}

// NewAuthenContinue creates a new AuthenContinue packet with the specified user message.
func NewAuthenContinue(userMsg string) *AuthenContinue {
	return &AuthenContinue{
		UserMsg: []byte(userMsg),
	}
}

// WireSize returns the encoded length of the CONTINUE body.
func (p *AuthenContinue) WireSize() int {
	return 5 + len(p.UserMsg) + len(p.Data)
}

// EncodeTo encodes the AuthenContinue packet into buf.
func (p *AuthenContinue) EncodeTo(buf []byte) (int, error) {
	userMsgLen := len(p.UserMsg)
	dataLen := len(p.Data)

	if userMsgLen > 65535 || dataLen > 65535 {
		return 0, fmt.Errorf("%w: field length exceeds 65535 bytes", ErrInvalidPacket)
	}

	// Unknown flag bits are preserved on decode but rejected on encode
	if p.Flags&^uint8(AuthenContinueFlagAbort) != 0 {
		return 0, invalidEnum("flags", p.Flags)
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	binary.BigEndian.PutUint16(buf[0:2], uint16(userMsgLen))
	binary.BigEndian.PutUint16(buf[2:4], uint16(dataLen))
	buf[4] = p.Flags

	offset := 5
	offset += copy(buf[offset:], p.UserMsg)
	offset += copy(buf[offset:], p.Data)

	return offset, nil
}

// MarshalBinary encodes the AuthenContinue packet to binary format.
func (p *AuthenContinue) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AuthenContinue packet from binary format.
// Variable-length fields borrow sub-slices of data.
func (p *AuthenContinue) UnmarshalBinary(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: need at least 5 bytes, got %d", ErrBufferTooShort, len(data))
	}

	userMsgLen := int(binary.BigEndian.Uint16(data[0:2]))
	dataLen := int(binary.BigEndian.Uint16(data[2:4]))
	p.Flags = data[4]

	expectedLen := 5 + userMsgLen + dataLen
	if len(data) < expectedLen {
		if isBadSecretError(len(data), expectedLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, expectedLen, len(data))
		}
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, expectedLen, len(data))
	}

	offset := 5
	p.UserMsg = fieldSlice(data, offset, userMsgLen)
	offset += userMsgLen
	p.Data = fieldSlice(data, offset, dataLen)

	return nil
}

// IsAbort returns true if the ABORT flag is set.
func (p *AuthenContinue) IsAbort() bool {
	return p.Flags&AuthenContinueFlagAbort != 0
}

// SetAbort sets or clears the ABORT flag.
func (p *AuthenContinue) SetAbort(abort bool) {
	if abort {
		p.Flags |= AuthenContinueFlagAbort
	} else {
		p.Flags &^= AuthenContinueFlagAbort
	}
}

// fieldSlice borrows a length-prefixed field out of data, returning nil for
// empty fields so round trips preserve nil-ness.
func fieldSlice(data []byte, offset, length int) []byte {
	if length == 0 {
		return nil
	}
	return data[offset : offset+length]
}

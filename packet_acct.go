package tacplus

import (
	"fmt"
)

// AcctRequest represents a TACACS+ accounting REQUEST packet as defined in
// RFC8907 Section 7.1. This packet is sent by the client to deliver
// accounting records to the server.
type AcctRequest struct {
	Flags        uint8      // Accounting flags (START, STOP, WATCHDOG)
	AuthenMethod uint8      // Authentication method used
	PrivLevel    uint8      // Privilege level
	AuthenType   uint8      // Authentication type
	Service      uint8      // Authentication service
	User         []byte     // Username
	Port         []byte     // Port identifier
	RemoteAddr   []byte     // Remote address
	Args         []Argument // Accounting arguments
}

// NewAcctRequest creates a new AcctRequest packet with the specified parameters.
func NewAcctRequest(flags, authenMethod, authenType, service uint8, user string) *AcctRequest {
	return &AcctRequest{
		Flags:        flags,
		AuthenMethod: authenMethod,
		PrivLevel:    PrivLevelUser,
		AuthenType:   authenType,
		Service:      service,
		User:         []byte(user),
	}
}

// AddArg appends a mandatory name=value argument to the request.
func (p *AcctRequest) AddArg(name, value string) {
	p.Args = append(p.Args, NewArgument(name, value))
}

// AddOptionalArg appends an optional name*value argument to the request.
func (p *AcctRequest) AddOptionalArg(name, value string) {
	p.Args = append(p.Args, NewOptionalArgument(name, value))
}

// IsStart returns true if the START flag is set.
func (p *AcctRequest) IsStart() bool {
	return p.Flags&AcctFlagStart != 0
}

// IsStop returns true if the STOP flag is set.
func (p *AcctRequest) IsStop() bool {
	return p.Flags&AcctFlagStop != 0
}

// IsWatchdog returns true if the WATCHDOG flag is set.
func (p *AcctRequest) IsWatchdog() bool {
	return p.Flags&AcctFlagWatchdog != 0
}

// validate checks the record flags and enum-valued fields against their
// RFC8907 value sets.
func (p *AcctRequest) validate() error {
	if err := checkAcctFlags(p.Flags); err != nil {
		return err
	}
	if err := checkAuthenMethod(p.AuthenMethod); err != nil {
		return err
	}
	if err := checkPrivLevel(p.PrivLevel); err != nil {
		return err
	}
	if err := checkAuthenTypeOrNotSet(p.AuthenType); err != nil {
		return err
	}
	return checkAuthenService(p.Service)
}

// WireSize returns the encoded length of the REQUEST body.
func (p *AcctRequest) WireSize() int {
	size := 9 + len(p.Args) + len(p.User) + len(p.Port) + len(p.RemoteAddr)
	for i := range p.Args {
		size += p.Args[i].WireSize()
	}
	return size
}

// EncodeTo encodes the AcctRequest packet into buf. Encoding is two-pass:
// the argument lengths are summed and written up front, then the payloads.
func (p *AcctRequest) EncodeTo(buf []byte) (int, error) {
	userLen := len(p.User)
	portLen := len(p.Port)
	remAddrLen := len(p.RemoteAddr)
	argCount := len(p.Args)

	if userLen > 255 || portLen > 255 || remAddrLen > 255 {
		return 0, fmt.Errorf("%w: field length exceeds 255 bytes", ErrInvalidPacket)
	}

	if err := p.validate(); err != nil {
		return 0, err
	}

	if _, err := argumentsWireSize(p.Args); err != nil {
		return 0, err
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	buf[0] = p.Flags
	buf[1] = p.AuthenMethod
	buf[2] = p.PrivLevel
	buf[3] = p.AuthenType
	buf[4] = p.Service
	buf[5] = uint8(userLen)
	buf[6] = uint8(portLen)
	buf[7] = uint8(remAddrLen)
	buf[8] = uint8(argCount)

	offset := 9

	for i := range p.Args {
		buf[offset] = uint8(p.Args[i].WireSize())
		offset++
	}

	offset += copy(buf[offset:], p.User)
	offset += copy(buf[offset:], p.Port)
	offset += copy(buf[offset:], p.RemoteAddr)

	for i := range p.Args {
		n, err := p.Args[i].EncodeTo(buf[offset:])
		if err != nil {
			return 0, err
		}
		offset += n
	}

	return offset, nil
}

// MarshalBinary encodes the AcctRequest packet to binary format.
func (p *AcctRequest) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AcctRequest packet from binary format.
// Variable-length fields and argument names/values borrow sub-slices of data.
func (p *AcctRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 9 {
		return fmt.Errorf("%w: need at least 9 bytes, got %d", ErrBufferTooShort, len(data))
	}

	p.Flags = data[0]
	p.AuthenMethod = data[1]
	p.PrivLevel = data[2]
	p.AuthenType = data[3]
	p.Service = data[4]

	userLen := int(data[5])
	portLen := int(data[6])
	remAddrLen := int(data[7])
	argCount := int(data[8])

	minLen := 9 + argCount + userLen + portLen + remAddrLen
	if len(data) < minLen {
		if isBadSecretError(len(data), minLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, minLen, len(data))
		}
		return fmt.Errorf("%w: need at least %d bytes for header and lengths, got %d", ErrBufferTooShort, minLen, len(data))
	}

	offset := 9
	argLens := data[offset : offset+argCount]
	offset += argCount

	totalArgsLen := 0
	for _, argLen := range argLens {
		totalArgsLen += int(argLen)
	}

	expectedLen := offset + userLen + portLen + remAddrLen + totalArgsLen
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

	p.User = fieldSlice(data, offset, userLen)
	offset += userLen
	p.Port = fieldSlice(data, offset, portLen)
	offset += portLen
	p.RemoteAddr = fieldSlice(data, offset, remAddrLen)
	offset += remAddrLen

	args, err := parseArgs(data, offset, argLens)
	if err != nil {
		return err
	}
	p.Args = args

	return nil
}

// AcctReply represents a TACACS+ accounting REPLY packet as defined in
// RFC8907 Section 7.2. This packet is sent by the server in response to an
// accounting request.
type AcctReply struct {
	Status    uint8  // Accounting status
	ServerMsg []byte // Server message (optional)
	Data      []byte // Additional data (optional)
}

// NewAcctReply creates a new AcctReply packet with the specified status.
func NewAcctReply(status uint8) *AcctReply {
	return &AcctReply{
		Status: status,
	}
}

// WireSize returns the encoded length of the REPLY body.
func (p *AcctReply) WireSize() int {
	return 5 + len(p.ServerMsg) + len(p.Data)
}

// EncodeTo encodes the AcctReply packet into buf.
func (p *AcctReply) EncodeTo(buf []byte) (int, error) {
	serverMsgLen := len(p.ServerMsg)
	dataLen := len(p.Data)

	if serverMsgLen > 65535 || dataLen > 65535 {
		return 0, fmt.Errorf("%w: field length exceeds 65535 bytes", ErrInvalidPacket)
	}

	if err := checkAcctStatus(p.Status); err != nil {
		return 0, err
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	buf[0] = uint8(serverMsgLen >> 8)
	buf[1] = uint8(serverMsgLen)
	buf[2] = uint8(dataLen >> 8)
	buf[3] = uint8(dataLen)
	buf[4] = p.Status

	offset := 5
	offset += copy(buf[offset:], p.ServerMsg)
	offset += copy(buf[offset:], p.Data)

	return offset, nil
}

// MarshalBinary encodes the AcctReply packet to binary format.
func (p *AcctReply) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AcctReply packet from binary format.
// Variable-length fields borrow sub-slices of data.
func (p *AcctReply) UnmarshalBinary(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: need at least 5 bytes, got %d", ErrBufferTooShort, len(data))
	}

	serverMsgLen := int(data[0])<<8 | int(data[1])
	dataLen := int(data[2])<<8 | int(data[3])
	p.Status = data[4]

	expectedLen := 5 + serverMsgLen + dataLen
	if len(data) < expectedLen {
		if isBadSecretError(len(data), expectedLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, expectedLen, len(data))
		}
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, expectedLen, len(data))
	}

	if err := checkAcctStatus(p.Status); err != nil {
		return err
	}

	offset := 5
	p.ServerMsg = fieldSlice(data, offset, serverMsgLen)
	offset += serverMsgLen
	p.Data = fieldSlice(data, offset, dataLen)

	return nil
}

// IsSuccess returns true if the status indicates success.
func (p *AcctReply) IsSuccess() bool {
	return p.Status == AcctStatusSuccess
}

// IsError returns true if the status indicates an error.
func (p *AcctReply) IsError() bool {
	return p.Status == AcctStatusError
}

package tacplus

import (
	"fmt"
)

// AuthorRequest represents a TACACS+ authorization REQUEST packet as defined
// in RFC8907 Section 6.1. This packet is sent by the client to request
// authorization for a specific action.
type AuthorRequest struct {
	AuthenMethod uint8      // Authentication method used
	PrivLevel    uint8      // Privilege level
	AuthenType   uint8      // Authentication type
	Service      uint8      // Authentication service
	User         []byte     // Username
	Port         []byte     // Port identifier
	RemoteAddr   []byte     // Remote address
	Args         []Argument // Authorization arguments
}

// NewAuthorRequest creates a new AuthorRequest packet with the specified parameters.
func NewAuthorRequest(authenMethod, authenType, service uint8, user string) *AuthorRequest {
	return &AuthorRequest{
		AuthenMethod: authenMethod,
		PrivLevel:    PrivLevelUser,
		AuthenType:   authenType,
		Service:      service,
		User:         []byte(user),
	}
}

// AddArg appends a mandatory name=value argument to the request.
func (p *AuthorRequest) AddArg(name, value string) {
	p.Args = append(p.Args, NewArgument(name, value))
}

// AddOptionalArg appends an optional name*value argument to the request.
func (p *AuthorRequest) AddOptionalArg(name, value string) {
	p.Args = append(p.Args, NewOptionalArgument(name, value))
}

// validate checks the enum-valued fields against their RFC8907 value sets.
func (p *AuthorRequest) validate() error {
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
func (p *AuthorRequest) WireSize() int {
	size := 8 + len(p.Args) + len(p.User) + len(p.Port) + len(p.RemoteAddr)
	for i := range p.Args {
		size += p.Args[i].WireSize()
	}
	return size
}

// EncodeTo encodes the AuthorRequest packet into buf. Encoding is two-pass:
// the argument lengths are summed and written up front, then the payloads.
func (p *AuthorRequest) EncodeTo(buf []byte) (int, error) {
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

	buf[0] = p.AuthenMethod
	buf[1] = p.PrivLevel
	buf[2] = p.AuthenType
	buf[3] = p.Service
	buf[4] = uint8(userLen)
	buf[5] = uint8(portLen)
	buf[6] = uint8(remAddrLen)
	buf[7] = uint8(argCount)

	offset := 8

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

// MarshalBinary encodes the AuthorRequest packet to binary format.
func (p *AuthorRequest) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AuthorRequest packet from binary format.
// Variable-length fields and argument names/values borrow sub-slices of data.
func (p *AuthorRequest) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: need at least 8 bytes, got %d", ErrBufferTooShort, len(data))
	}

	p.AuthenMethod = data[0]
	p.PrivLevel = data[1]
	p.AuthenType = data[2]
	p.Service = data[3]

	userLen := int(data[4])
	portLen := int(data[5])
	remAddrLen := int(data[6])
	argCount := int(data[7])

	minLen := 8 + argCount + userLen + portLen + remAddrLen
	if len(data) < minLen {
		if isBadSecretError(len(data), minLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, minLen, len(data))
		}
		return fmt.Errorf("%w: need at least %d bytes for header and lengths, got %d", ErrBufferTooShort, minLen, len(data))
	}

	offset := 8
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

// AuthorResponse represents a TACACS+ authorization RESPONSE packet as
// defined in RFC8907 Section 6.2. This packet is sent by the server in
// response to an authorization request.
type AuthorResponse struct {
	Status    uint8      // Authorization status
	Args      []Argument // Authorization arguments (may be modified from request)
	ServerMsg []byte     // Server message (optional)
	Data      []byte     // Additional data (optional)
}

// NewAuthorResponse creates a new AuthorResponse packet with the specified status.
func NewAuthorResponse(status uint8) *AuthorResponse {
	return &AuthorResponse{
		Status: status,
	}
}

// AddArg appends a mandatory name=value argument to the response.
func (p *AuthorResponse) AddArg(name, value string) {
	p.Args = append(p.Args, NewArgument(name, value))
}

// WireSize returns the encoded length of the RESPONSE body.
func (p *AuthorResponse) WireSize() int {
	size := 6 + len(p.Args) + len(p.ServerMsg) + len(p.Data)
	for i := range p.Args {
		size += p.Args[i].WireSize()
	}
	return size
}

// EncodeTo encodes the AuthorResponse packet into buf.
func (p *AuthorResponse) EncodeTo(buf []byte) (int, error) {
	serverMsgLen := len(p.ServerMsg)
	dataLen := len(p.Data)
	argCount := len(p.Args)

	if serverMsgLen > 65535 || dataLen > 65535 {
		return 0, fmt.Errorf("%w: field length exceeds 65535 bytes", ErrInvalidPacket)
	}

	if err := checkAuthorStatus(p.Status); err != nil {
		return 0, err
	}

	if _, err := argumentsWireSize(p.Args); err != nil {
		return 0, err
	}

	size := p.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	buf[0] = p.Status
	buf[1] = uint8(argCount)
	buf[2] = uint8(serverMsgLen >> 8)
	buf[3] = uint8(serverMsgLen)
	buf[4] = uint8(dataLen >> 8)
	buf[5] = uint8(dataLen)

	offset := 6

	for i := range p.Args {
		buf[offset] = uint8(p.Args[i].WireSize())
		offset++
	}

	offset += copy(buf[offset:], p.ServerMsg)
	offset += copy(buf[offset:], p.Data)

	for i := range p.Args {
		n, err := p.Args[i].EncodeTo(buf[offset:])
		if err != nil {
			return 0, err
		}
		offset += n
	}

	return offset, nil
}

// MarshalBinary encodes the AuthorResponse packet to binary format.
func (p *AuthorResponse) MarshalBinary() ([]byte, error) {
	return marshalPacket(p)
}

// UnmarshalBinary decodes the AuthorResponse packet from binary format.
// Variable-length fields and argument names/values borrow sub-slices of data.
func (p *AuthorResponse) UnmarshalBinary(data []byte) error {
	if len(data) < 6 {
		return fmt.Errorf("%w: need at least 6 bytes, got %d", ErrBufferTooShort, len(data))
	}

	p.Status = data[0]
	argCount := int(data[1])
	serverMsgLen := int(data[2])<<8 | int(data[3])
	dataLen := int(data[4])<<8 | int(data[5])

	minLen := 6 + argCount
	if len(data) < minLen {
		return fmt.Errorf("%w: need at least %d bytes for header and arg lengths, got %d", ErrBufferTooShort, minLen, len(data))
	}

	offset := 6
	argLens := data[offset : offset+argCount]
	offset += argCount

	totalArgsLen := 0
	for _, argLen := range argLens {
		totalArgsLen += int(argLen)
	}

	expectedLen := offset + serverMsgLen + dataLen + totalArgsLen
	if len(data) < expectedLen {
		if isBadSecretError(len(data), expectedLen) {
			return fmt.Errorf("%w: calculated length %d far exceeds actual %d", ErrBadSecret, expectedLen, len(data))
		}
		return fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, expectedLen, len(data))
	}

	if err := checkAuthorStatus(p.Status); err != nil {
		return err
	}

	p.ServerMsg = fieldSlice(data, offset, serverMsgLen)
	offset += serverMsgLen
	p.Data = fieldSlice(data, offset, dataLen)
	offset += dataLen

	args, err := parseArgs(data, offset, argLens)
	if err != nil {
		return err
	}
	p.Args = args

	return nil
}

// IsPass returns true if the authorization passed (either PASS_ADD or PASS_REPL).
func (p *AuthorResponse) IsPass() bool {
	return p.Status == AuthorStatusPassAdd || p.Status == AuthorStatusPassRepl
}

// IsPassAdd returns true if the status is PASS_ADD.
func (p *AuthorResponse) IsPassAdd() bool {
	return p.Status == AuthorStatusPassAdd
}

// IsPassRepl returns true if the status is PASS_REPL.
func (p *AuthorResponse) IsPassRepl() bool {
	return p.Status == AuthorStatusPassRepl
}

// IsFail returns true if the authorization failed.
func (p *AuthorResponse) IsFail() bool {
	return p.Status == AuthorStatusFail
}

// IsError returns true if an error occurred.
func (p *AuthorResponse) IsError() bool {
	return p.Status == AuthorStatusError
}

// parseArgs decodes argCount arguments starting at offset, with per-argument
// lengths taken from argLens. Only the outer slice is allocated; names and
// values borrow from data.
func parseArgs(data []byte, offset int, argLens []byte) ([]Argument, error) {
	if len(argLens) == 0 {
		return nil, nil
	}

	args := make([]Argument, len(argLens))
	for i, argLen := range argLens {
		arg, err := ParseArgument(data[offset : offset+int(argLen)])
		if err != nil {
			return nil, err
		}
		args[i] = arg
		offset += int(argLen)
	}

	return args, nil
}

package tacplus

import (
	"encoding"
	"fmt"
)

// Packet is the interface implemented by all TACACS+ packet bodies.
//
// UnmarshalBinary implementations borrow variable-length fields as sub-slices
// of the input; callers that retain a body beyond the life of the input
// buffer must copy. EncodeTo writes into a caller-supplied buffer and never
// allocates, which keeps the codec usable without a heap; MarshalBinary is
// the allocating convenience layer on top of it.
type Packet interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// WireSize returns the exact encoded length of the body.
	WireSize() int

	// EncodeTo encodes the body into buf and returns the number of bytes
	// written, or ErrBufferTooShort.
	EncodeTo(buf []byte) (int, error)
}

// ParseAuthenPacket parses an authentication packet body based on the
// sequence number. Sequence 1 is a START, even sequence numbers are server
// REPLYs, odd sequence numbers above 1 are client CONTINUEs.
func ParseAuthenPacket(seqNo uint8, data []byte) (Packet, error) {
	if seqNo == 0 {
		return nil, fmt.Errorf("%w: sequence number cannot be 0", ErrInvalidSequence)
	}

	var p Packet
	switch {
	case seqNo == 1:
		p = &AuthenStart{}
	case seqNo%2 == 0:
		p = &AuthenReply{}
	default:
		p = &AuthenContinue{}
	}

	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseAuthorPacket parses an authorization packet body based on the
// sequence number. Authorization is a single round trip: sequence 1 is the
// REQUEST, sequence 2 the RESPONSE.
func ParseAuthorPacket(seqNo uint8, data []byte) (Packet, error) {
	var p Packet
	switch seqNo {
	case 0:
		return nil, fmt.Errorf("%w: sequence number cannot be 0", ErrInvalidSequence)
	case 1:
		p = &AuthorRequest{}
	case 2:
		p = &AuthorResponse{}
	default:
		return nil, fmt.Errorf("%w: authorization only supports sequence 1 (request) or 2 (response)", ErrInvalidSequence)
	}

	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseAcctPacket parses an accounting packet body based on the sequence
// number. Accounting is a single round trip: sequence 1 is the REQUEST,
// sequence 2 the REPLY.
func ParseAcctPacket(seqNo uint8, data []byte) (Packet, error) {
	var p Packet
	switch seqNo {
	case 0:
		return nil, fmt.Errorf("%w: sequence number cannot be 0", ErrInvalidSequence)
	case 1:
		p = &AcctRequest{}
	case 2:
		p = &AcctReply{}
	default:
		return nil, fmt.Errorf("%w: accounting only supports sequence 1 (request) or 2 (reply)", ErrInvalidSequence)
	}

	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return p, nil
}

// ParsePacket parses a packet body based on the header information.
// It determines the packet class from the header type and sequence number
// and delegates to the appropriate parser.
func ParsePacket(header *Header, data []byte) (Packet, error) {
	if header == nil {
		return nil, fmt.Errorf("%w: header is nil", ErrInvalidHeader)
	}

	if uint32(len(data)) != header.Length {
		return nil, fmt.Errorf("%w: header declares %d body bytes, got %d", ErrLengthMismatch, header.Length, len(data))
	}

	switch header.Type {
	case PacketTypeAuthen:
		return ParseAuthenPacket(header.SeqNo, data)
	case PacketTypeAuthor:
		return ParseAuthorPacket(header.SeqNo, data)
	case PacketTypeAcct:
		return ParseAcctPacket(header.SeqNo, data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, header.Type)
	}
}

// PacketType returns the packet type constant for a given packet body.
func PacketType(p Packet) uint8 {
	switch p.(type) {
	case *AuthenStart, *AuthenReply, *AuthenContinue:
		return PacketTypeAuthen
	case *AuthorRequest, *AuthorResponse:
		return PacketTypeAuthor
	case *AcctRequest, *AcctReply:
		return PacketTypeAcct
	default:
		return 0
	}
}

// IsClientPacket returns true if the packet class is sent by the client.
func IsClientPacket(p Packet) bool {
	switch p.(type) {
	case *AuthenStart, *AuthenContinue, *AuthorRequest, *AcctRequest:
		return true
	default:
		return false
	}
}

// IsServerPacket returns true if the packet class is sent by the server.
func IsServerPacket(p Packet) bool {
	switch p.(type) {
	case *AuthenReply, *AuthorResponse, *AcctReply:
		return true
	default:
		return false
	}
}

// marshalPacket is the shared MarshalBinary implementation: size the body,
// then encode into a fresh buffer.
func marshalPacket(p Packet) ([]byte, error) {
	buf := make([]byte, p.WireSize())
	n, err := p.EncodeTo(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// invalidEnum reports an octet outside the defined value set of a field.
func invalidEnum(field string, value uint8) error {
	return fmt.Errorf("%w: %s %#02x", ErrInvalidEnumValue, field, value)
}

// checkPrivLevel validates the 0-15 privilege level bound of RFC8907
// Section 9.
func checkPrivLevel(v uint8) error {
	if v > PrivLevelRoot {
		return invalidEnum("priv_lvl", v)
	}
	return nil
}

func checkAuthenAction(v uint8) error {
	switch v {
	case AuthenActionLogin, AuthenActionChPass, AuthenActionSendAuth:
		return nil
	}
	return invalidEnum("action", v)
}

func checkAuthenType(v uint8) error {
	switch v {
	case AuthenTypeASCII, AuthenTypePAP, AuthenTypeCHAP, AuthenTypeMSCHAP, AuthenTypeMSCHAPV2:
		return nil
	}
	return invalidEnum("authen_type", v)
}

// checkAuthenTypeOrNotSet additionally permits NOT_SET, which is only valid
// in authorization and accounting requests.
func checkAuthenTypeOrNotSet(v uint8) error {
	if v == AuthenTypeNotSet {
		return nil
	}
	return checkAuthenType(v)
}

func checkAuthenService(v uint8) error {
	switch v {
	case AuthenServiceNone, AuthenServiceLogin, AuthenServiceEnable, AuthenServicePPP,
		AuthenServicePT, AuthenServiceRCMD, AuthenServiceX25, AuthenServiceNASI,
		AuthenServiceFwProxy:
		return nil
	}
	return invalidEnum("service", v)
}

func checkAuthenMethod(v uint8) error {
	switch v {
	case AuthenMethodNotSet, AuthenMethodNone, AuthenMethodKRB5, AuthenMethodLine,
		AuthenMethodEnable, AuthenMethodLocal, AuthenMethodTACACSPlus,
		AuthenMethodGuest, AuthenMethodRadius, AuthenMethodKRB4, AuthenMethodRCMD:
		return nil
	}
	return invalidEnum("authen_method", v)
}

func checkAuthenStatus(v uint8) error {
	switch v {
	case AuthenStatusPass, AuthenStatusFail, AuthenStatusGetData, AuthenStatusGetUser,
		AuthenStatusGetPass, AuthenStatusRestart, AuthenStatusError, AuthenStatusFollow:
		return nil
	}
	return invalidEnum("status", v)
}

func checkAuthorStatus(v uint8) error {
	switch v {
	case AuthorStatusPassAdd, AuthorStatusPassRepl, AuthorStatusFail,
		AuthorStatusError, AuthorStatusFollow:
		return nil
	}
	return invalidEnum("status", v)
}

func checkAcctStatus(v uint8) error {
	switch v {
	case AcctStatusSuccess, AcctStatusError, AcctStatusFollow:
		return nil
	}
	return invalidEnum("status", v)
}

// checkAcctFlags validates the RFC8907 Section 7.1 record flags: at least
// one known flag, no unknown bits, and START and STOP never combined.
func checkAcctFlags(v uint8) error {
	if v == 0 || v&^(AcctFlagStart|AcctFlagStop|AcctFlagWatchdog) != 0 {
		return invalidEnum("flags", v)
	}
	if v&AcctFlagStart != 0 && v&AcctFlagStop != 0 {
		return invalidEnum("flags", v)
	}
	return nil
}

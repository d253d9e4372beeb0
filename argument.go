package tacplus

import (
	"bytes"
	"fmt"
)

// Argument is a name-value attribute carried in authorization and accounting
// bodies, as defined in RFC8907 Section 6.1. The name and value are joined on
// the wire by '=' for mandatory arguments or '*' for optional ones.
type Argument struct {
	Name     []byte
	Value    []byte
	Optional bool
}

// NewArgument creates a mandatory argument from name and value strings.
func NewArgument(name, value string) Argument {
	return Argument{Name: []byte(name), Value: []byte(value)}
}

// NewOptionalArgument creates an optional argument from name and value strings.
func NewOptionalArgument(name, value string) Argument {
	return Argument{Name: []byte(name), Value: []byte(value), Optional: true}
}

// Validate checks the RFC8907 constraints on an argument: the name must be
// non-empty and free of separator characters, and the full encoding
// (name + separator + value) must fit in a single length octet.
func (a *Argument) Validate() error {
	if len(a.Name) == 0 {
		return fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}

	if bytes.IndexByte(a.Name, ArgSeparatorRequired) >= 0 || bytes.IndexByte(a.Name, ArgSeparatorOptional) >= 0 {
		return fmt.Errorf("%w: name %q contains a separator", ErrInvalidArgument, a.Name)
	}

	if a.WireSize() > 255 {
		return fmt.Errorf("%w: encoded length %d exceeds 255", ErrInvalidArgument, a.WireSize())
	}

	return nil
}

// WireSize returns the encoded length of the argument, including the
// separator but not the length octet stored earlier in the packet.
func (a *Argument) WireSize() int {
	return len(a.Name) + 1 + len(a.Value)
}

// EncodeTo writes the name-separator-value encoding into buf and returns the
// number of bytes written. The argument must have been validated.
func (a *Argument) EncodeTo(buf []byte) (int, error) {
	size := a.WireSize()
	if len(buf) < size {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBufferTooShort, size, len(buf))
	}

	n := copy(buf, a.Name)
	if a.Optional {
		buf[n] = ArgSeparatorOptional
	} else {
		buf[n] = ArgSeparatorRequired
	}
	n++
	n += copy(buf[n:], a.Value)

	return n, nil
}

// String returns the wire encoding of the argument as a string.
func (a Argument) String() string {
	sep := byte(ArgSeparatorRequired)
	if a.Optional {
		sep = ArgSeparatorOptional
	}
	return string(a.Name) + string(sep) + string(a.Value)
}

// ParseArgument decodes a single name-value encoding. The separator is the
// first '=' or '*' in the buffer; names MUST NOT contain either, so whichever
// appears first delimits the name. The returned argument borrows sub-slices
// of data.
func ParseArgument(data []byte) (Argument, error) {
	if len(data) > 255 {
		return Argument{}, fmt.Errorf("%w: encoded length %d exceeds 255", ErrInvalidArgument, len(data))
	}

	eq := bytes.IndexByte(data, ArgSeparatorRequired)
	star := bytes.IndexByte(data, ArgSeparatorOptional)

	sep := eq
	if sep < 0 || (star >= 0 && star < sep) {
		sep = star
	}

	if sep < 0 {
		return Argument{}, fmt.Errorf("%w: no separator in %q", ErrInvalidArgument, data)
	}
	if sep == 0 {
		return Argument{}, fmt.Errorf("%w: empty name in %q", ErrInvalidArgument, data)
	}

	return Argument{
		Name:     data[:sep],
		Value:    data[sep+1:],
		Optional: data[sep] == ArgSeparatorOptional,
	}, nil
}

// argumentsWireSize sums the encoded lengths of args after validating each.
// The count octet and per-argument length octets are accounted separately by
// the body codecs.
func argumentsWireSize(args []Argument) (int, error) {
	if len(args) > 255 {
		return 0, fmt.Errorf("%w: argument count %d exceeds 255", ErrInvalidPacket, len(args))
	}

	total := 0
	for i := range args {
		if err := args[i].Validate(); err != nil {
			return 0, err
		}
		total += args[i].WireSize()
	}
	return total, nil
}

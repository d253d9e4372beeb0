package tacplus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcctRequestRoundtrip(t *testing.T) {
	testCases := []struct {
		name   string
		packet AcctRequest
	}{
		{
			name: "start record",
			packet: AcctRequest{
				Flags:        AcctFlagStart,
				AuthenMethod: AuthenMethodTACACSPlus,
				PrivLevel:    PrivLevelUser,
				AuthenType:   AuthenTypeNotSet,
				Service:      AuthenServiceLogin,
				User:         []byte("someuser"),
				Port:         []byte("tty0"),
				Args: []Argument{
					NewArgument("task_id", "7"),
					NewArgument("start_time", "1700000000"),
				},
			},
		},
		{
			name: "stop record",
			packet: AcctRequest{
				Flags:        AcctFlagStop,
				AuthenMethod: AuthenMethodTACACSPlus,
				PrivLevel:    PrivLevelUser,
				AuthenType:   AuthenTypeNotSet,
				Service:      AuthenServiceLogin,
				User:         []byte("someuser"),
				Args: []Argument{
					NewArgument("task_id", "7"),
					NewArgument("elapsed", "120"),
				},
			},
		},
		{
			name: "watchdog without arguments",
			packet: AcctRequest{
				Flags:        AcctFlagWatchdog,
				AuthenMethod: AuthenMethodLocal,
				PrivLevel:    PrivLevelMin,
				AuthenType:   AuthenTypeASCII,
				Service:      AuthenServiceNone,
				User:         []byte("u"),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.packet.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, data, tc.packet.WireSize())

			decoded := AcctRequest{}
			require.NoError(t, decoded.UnmarshalBinary(data))
			assert.Equal(t, tc.packet, decoded)

			reencoded, err := decoded.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, data, reencoded)
		})
	}
}

func TestAcctRequestFlagHelpers(t *testing.T) {
	assert.True(t, (&AcctRequest{Flags: AcctFlagStart}).IsStart())
	assert.True(t, (&AcctRequest{Flags: AcctFlagStop}).IsStop())
	assert.True(t, (&AcctRequest{Flags: AcctFlagWatchdog}).IsWatchdog())
	assert.False(t, (&AcctRequest{Flags: AcctFlagStart}).IsStop())

	both := &AcctRequest{Flags: AcctFlagWatchdog | AcctFlagStart}
	assert.True(t, both.IsStart())
	assert.True(t, both.IsWatchdog())
}

func TestAcctRequestWireLayout(t *testing.T) {
	packet := AcctRequest{
		Flags:        AcctFlagStop,
		AuthenMethod: AuthenMethodTACACSPlus,
		PrivLevel:    PrivLevelUser,
		AuthenType:   AuthenTypeNotSet,
		Service:      AuthenServiceLogin,
		User:         []byte("someuser"),
		Args: []Argument{
			NewArgument("task_id", "7"),
			NewArgument("elapsed", "120"),
		},
	}

	data, err := packet.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, uint8(AcctFlagStop), data[0])
	assert.Equal(t, uint8(AuthenMethodTACACSPlus), data[1])
	assert.Equal(t, uint8(PrivLevelUser), data[2])
	assert.Equal(t, uint8(AuthenTypeNotSet), data[3])
	assert.Equal(t, uint8(AuthenServiceLogin), data[4])
	assert.Equal(t, uint8(8), data[5])  // user_len
	assert.Equal(t, uint8(0), data[6])  // port_len
	assert.Equal(t, uint8(0), data[7])  // rem_addr_len
	assert.Equal(t, uint8(2), data[8])  // arg_cnt
	assert.Equal(t, uint8(9), data[9])  // len("task_id=7")
	assert.Equal(t, uint8(11), data[10]) // len("elapsed=120")
	assert.Equal(t, "someuser", string(data[11:19]))
	assert.Equal(t, "task_id=7", string(data[19:28]))
	assert.Equal(t, "elapsed=120", string(data[28:]))
}

func TestAcctRequestUnmarshalErrors(t *testing.T) {
	t.Run("truncated fixed fields", func(t *testing.T) {
		p := AcctRequest{}
		assert.ErrorIs(t, p.UnmarshalBinary(make([]byte, 8)), ErrBufferTooShort)
	})

	t.Run("bad secret detection", func(t *testing.T) {
		garbage := []byte{0xa3, 0x91, 0x5f, 0xe2, 0x77, 0xc8, 0xb1, 0x99, 0xd4, 0x20}
		p := AcctRequest{}
		assert.ErrorIs(t, p.UnmarshalBinary(garbage), ErrBadSecret)
	})
}

func TestAcctReplyRoundtrip(t *testing.T) {
	testCases := []struct {
		name   string
		packet AcctReply
	}{
		{
			name:   "success",
			packet: AcctReply{Status: AcctStatusSuccess},
		},
		{
			name:   "error with message",
			packet: AcctReply{Status: AcctStatusError, ServerMsg: []byte("log full"), Data: []byte("disk")},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.packet.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, data, tc.packet.WireSize())

			decoded := AcctReply{}
			require.NoError(t, decoded.UnmarshalBinary(data))
			assert.Equal(t, tc.packet, decoded)
		})
	}
}

func TestAcctReplyWireLayout(t *testing.T) {
	packet := AcctReply{Status: AcctStatusSuccess, ServerMsg: []byte("ok")}

	data, err := packet.MarshalBinary()
	require.NoError(t, err)

	// server_msg_len(2) + data_len(2) + status(1) + "ok"
	assert.Equal(t, []byte{0x00, 0x02, 0x00, 0x00, AcctStatusSuccess, 'o', 'k'}, data)
}

func TestAcctRequestEnumValidation(t *testing.T) {
	valid := func() AcctRequest {
		return AcctRequest{
			Flags:        AcctFlagStart,
			AuthenMethod: AuthenMethodTACACSPlus,
			PrivLevel:    PrivLevelUser,
			AuthenType:   AuthenTypeNotSet,
			Service:      AuthenServiceLogin,
			User:         []byte("user"),
		}
	}

	t.Run("unknown flag bits rejected on encode", func(t *testing.T) {
		packet := valid()
		packet.Flags = 0x40
		_, err := packet.MarshalBinary()
		assert.ErrorIs(t, err, ErrInvalidEnumValue)
	})

	t.Run("no flags rejected", func(t *testing.T) {
		packet := valid()
		packet.Flags = 0
		_, err := packet.MarshalBinary()
		assert.ErrorIs(t, err, ErrInvalidEnumValue)
	})

	t.Run("start and stop are mutually exclusive", func(t *testing.T) {
		packet := valid()
		packet.Flags = AcctFlagStart | AcctFlagStop
		_, err := packet.MarshalBinary()
		assert.ErrorIs(t, err, ErrInvalidEnumValue)
	})

	t.Run("watchdog with start is legal", func(t *testing.T) {
		packet := valid()
		packet.Flags = AcctFlagWatchdog | AcctFlagStart
		_, err := packet.MarshalBinary()
		assert.NoError(t, err)
	})

	t.Run("privilege level out of bounds", func(t *testing.T) {
		packet := valid()
		packet.PrivLevel = 0xff
		_, err := packet.MarshalBinary()
		assert.ErrorIs(t, err, ErrInvalidEnumValue)
	})

	t.Run("garbled octets rejected on decode", func(t *testing.T) {
		packet := valid()
		data, err := packet.MarshalBinary()
		require.NoError(t, err)

		for octet, garble := range map[int]byte{
			0: 0x80, // flags
			1: 0x7f, // authen_method
			2: 0x10, // priv_lvl
			3: 0x04, // authen_type
			4: 0x0a, // service
		} {
			bad := append([]byte{}, data...)
			bad[octet] = garble

			p := AcctRequest{}
			assert.ErrorIs(t, p.UnmarshalBinary(bad), ErrInvalidEnumValue, "octet %d", octet)
		}
	})
}

func TestAcctReplyUnmarshalEnumValidation(t *testing.T) {
	reply := AcctReply{Status: AcctStatusSuccess}
	data, err := reply.MarshalBinary()
	require.NoError(t, err)

	data[4] = 0xab // not a defined status

	p := AcctReply{}
	assert.ErrorIs(t, p.UnmarshalBinary(data), ErrInvalidEnumValue)
}

func TestAcctReplyStatusHelpers(t *testing.T) {
	assert.True(t, (&AcctReply{Status: AcctStatusSuccess}).IsSuccess())
	assert.True(t, (&AcctReply{Status: AcctStatusError}).IsError())
	assert.False(t, (&AcctReply{Status: AcctStatusError}).IsSuccess())
}

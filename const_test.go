package tacplus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionConstants(t *testing.T) {
	assert.Equal(t, 0x0c, MajorVersion)
	assert.Equal(t, 0x00, MinorVersionDefault)
	assert.Equal(t, 0x01, MinorVersionOne)
}

func TestPacketTypeConstants(t *testing.T) {
	assert.Equal(t, 0x01, PacketTypeAuthen)
	assert.Equal(t, 0x02, PacketTypeAuthor)
	assert.Equal(t, 0x03, PacketTypeAcct)
}

func TestFlagConstants(t *testing.T) {
	assert.Equal(t, 0x01, FlagUnencrypted)
	assert.Equal(t, 0x04, FlagSingleConnect)
}

func TestStatusConstants(t *testing.T) {
	assert.Equal(t, 0x21, AuthenStatusFollow)
	assert.Equal(t, 0x21, AuthorStatusFollow)
	assert.Equal(t, 0x21, AcctStatusFollow)

	assert.Equal(t, 0x10, AuthorStatusFail)
	assert.Equal(t, 0x02, AcctStatusError)
}

func TestAcctFlagConstants(t *testing.T) {
	// START, STOP and WATCHDOG occupy distinct bits
	assert.Equal(t, 0x02, AcctFlagStart)
	assert.Equal(t, 0x04, AcctFlagStop)
	assert.Equal(t, 0x08, AcctFlagWatchdog)
	assert.Zero(t, AcctFlagStart&AcctFlagStop)
	assert.Zero(t, AcctFlagStart&AcctFlagWatchdog)
}

func TestArgSeparators(t *testing.T) {
	assert.Equal(t, byte('='), byte(ArgSeparatorRequired))
	assert.Equal(t, byte('*'), byte(ArgSeparatorOptional))
}

func TestHeaderLengthConstant(t *testing.T) {
	assert.Equal(t, 12, HeaderLength)
}

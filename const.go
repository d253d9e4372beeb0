package tacplus

// TACACS+ protocol version constants as defined in RFC8907.
const (
	// MajorVersion is the TACACS+ major version (0x0c).
	MajorVersion = 0x0c

	// MinorVersionDefault is the default minor version.
	MinorVersionDefault = 0x00

	// MinorVersionOne indicates minor version 1, used by PAP, CHAP and
	// MS-CHAP authentication.
	MinorVersionOne = 0x01
)

// Packet type constants as defined in RFC8907 Section 4.1.
const (
	// PacketTypeAuthen indicates an authentication packet.
	PacketTypeAuthen = 0x01

	// PacketTypeAuthor indicates an authorization packet.
	PacketTypeAuthor = 0x02

	// PacketTypeAcct indicates an accounting packet.
	PacketTypeAcct = 0x03
)

// Header flag constants as defined in RFC8907 Section 4.1.
const (
	// FlagUnencrypted indicates the packet body is not obfuscated.
	FlagUnencrypted = 0x01

	// FlagSingleConnect indicates the sender wants to multiplex multiple
	// sessions over this connection.
	FlagSingleConnect = 0x04
)

// Privilege level bounds as defined in RFC8907 Section 9.
const (
	// PrivLevelMin is the lowest privilege level.
	PrivLevelMin = 0x00

	// PrivLevelUser is the default privilege level of an ordinary user.
	PrivLevelUser = 0x01

	// PrivLevelRoot is the highest privilege level.
	PrivLevelRoot = 0x0f
)

// Authentication action types as defined in RFC8907 Section 5.1.
const (
	// AuthenActionLogin indicates a login action.
	AuthenActionLogin = 0x01

	// AuthenActionChPass indicates a password change action.
	AuthenActionChPass = 0x02

	// AuthenActionSendAuth indicates a send authentication action.
	AuthenActionSendAuth = 0x04
)

// Authentication types as defined in RFC8907 Section 5.1.
const (
	// AuthenTypeNotSet indicates no authentication type, only valid in
	// authorization and accounting requests.
	AuthenTypeNotSet = 0x00

	// AuthenTypeASCII indicates ASCII authentication.
	AuthenTypeASCII = 0x01

	// AuthenTypePAP indicates PAP authentication.
	AuthenTypePAP = 0x02

	// AuthenTypeCHAP indicates CHAP authentication.
	AuthenTypeCHAP = 0x03

	// AuthenTypeMSCHAP indicates MS-CHAP v1 authentication.
	AuthenTypeMSCHAP = 0x05

	// AuthenTypeMSCHAPV2 indicates MS-CHAP v2 authentication.
	AuthenTypeMSCHAPV2 = 0x06
)

// Authentication service types as defined in RFC8907 Section 5.1.
const (
	// AuthenServiceNone indicates no service.
	AuthenServiceNone = 0x00

	// AuthenServiceLogin indicates login service.
	AuthenServiceLogin = 0x01

	// AuthenServiceEnable indicates enable service.
	AuthenServiceEnable = 0x02

	// AuthenServicePPP indicates PPP service.
	AuthenServicePPP = 0x03

	// AuthenServicePT indicates PT service.
	AuthenServicePT = 0x05

	// AuthenServiceRCMD indicates RCMD service.
	AuthenServiceRCMD = 0x06

	// AuthenServiceX25 indicates X25 service.
	AuthenServiceX25 = 0x07

	// AuthenServiceNASI indicates NASI service.
	AuthenServiceNASI = 0x08

	// AuthenServiceFwProxy indicates firewall proxy service.
	AuthenServiceFwProxy = 0x09
)

// Authentication status codes as defined in RFC8907 Section 5.2.
const (
	// AuthenStatusPass indicates authentication passed.
	AuthenStatusPass = 0x01

	// AuthenStatusFail indicates authentication failed.
	AuthenStatusFail = 0x02

	// AuthenStatusGetData indicates the server needs more data.
	AuthenStatusGetData = 0x03

	// AuthenStatusGetUser indicates the server needs the username.
	AuthenStatusGetUser = 0x04

	// AuthenStatusGetPass indicates the server needs the password.
	AuthenStatusGetPass = 0x05

	// AuthenStatusRestart indicates authentication should restart.
	AuthenStatusRestart = 0x06

	// AuthenStatusError indicates an error occurred.
	AuthenStatusError = 0x07

	// AuthenStatusFollow indicates the client should follow to another server.
	AuthenStatusFollow = 0x21
)

// Authentication reply flags as defined in RFC8907 Section 5.2.
const (
	// AuthenReplyFlagNoEcho indicates the server wants no echo of user input.
	AuthenReplyFlagNoEcho = 0x01
)

// Authentication continue flags as defined in RFC8907 Section 5.3.
const (
	// AuthenContinueFlagAbort indicates the client wants to abort authentication.
	AuthenContinueFlagAbort = 0x01
)

// Authentication method constants as defined in RFC8907 Section 6.1.
// These indicate how the user was authenticated in authorization and
// accounting requests.
const (
	// AuthenMethodNotSet indicates the authentication method was not set.
	AuthenMethodNotSet = 0x00

	// AuthenMethodNone indicates no authentication was performed.
	AuthenMethodNone = 0x01

	// AuthenMethodKRB5 indicates Kerberos 5 authentication.
	AuthenMethodKRB5 = 0x02

	// AuthenMethodLine indicates line authentication.
	AuthenMethodLine = 0x03

	// AuthenMethodEnable indicates enable authentication.
	AuthenMethodEnable = 0x04

	// AuthenMethodLocal indicates local database authentication.
	AuthenMethodLocal = 0x05

	// AuthenMethodTACACSPlus indicates TACACS+ authentication.
	AuthenMethodTACACSPlus = 0x06

	// AuthenMethodGuest indicates guest authentication.
	AuthenMethodGuest = 0x08

	// AuthenMethodRadius indicates RADIUS authentication.
	AuthenMethodRadius = 0x10

	// AuthenMethodKRB4 indicates Kerberos 4 authentication.
	AuthenMethodKRB4 = 0x11

	// AuthenMethodRCMD indicates RCMD authentication.
	AuthenMethodRCMD = 0x20
)

// Authorization status codes as defined in RFC8907 Section 6.2.
const (
	// AuthorStatusPassAdd indicates authorization passed with additional arguments.
	AuthorStatusPassAdd = 0x01

	// AuthorStatusPassRepl indicates authorization passed with replacement arguments.
	AuthorStatusPassRepl = 0x02

	// AuthorStatusFail indicates authorization failed.
	AuthorStatusFail = 0x10

	// AuthorStatusError indicates an error occurred.
	AuthorStatusError = 0x11

	// AuthorStatusFollow indicates the client should follow to another server.
	AuthorStatusFollow = 0x21
)

// Accounting flags as defined in RFC8907 Section 7.1.
const (
	// AcctFlagStart indicates the start of a task.
	AcctFlagStart = 0x02

	// AcctFlagStop indicates the end of a task.
	AcctFlagStop = 0x04

	// AcctFlagWatchdog indicates an update for an ongoing task.
	AcctFlagWatchdog = 0x08
)

// Accounting status codes as defined in RFC8907 Section 7.2.
const (
	// AcctStatusSuccess indicates the accounting record was accepted.
	AcctStatusSuccess = 0x01

	// AcctStatusError indicates an error occurred.
	AcctStatusError = 0x02

	// AcctStatusFollow indicates the client should follow to another server.
	AcctStatusFollow = 0x21
)

// Argument separators as defined in RFC8907 Section 6.1.
const (
	// ArgSeparatorRequired separates the name and value of a mandatory argument.
	ArgSeparatorRequired = '='

	// ArgSeparatorOptional separates the name and value of an optional argument.
	ArgSeparatorOptional = '*'
)

// HeaderLength is the fixed size of a TACACS+ header in bytes.
const HeaderLength = 12

// DefaultPort is the default TACACS+ port as defined in RFC8907.
const DefaultPort = 49

// DefaultMaxBodyLength is the default maximum allowed body length (256KB).
// This prevents memory exhaustion attacks from malicious peers.
const DefaultMaxBodyLength = 256 * 1024

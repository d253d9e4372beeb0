// Package tacplus implements the client side of the TACACS+ protocol as
// defined in RFC8907. It provides a bit-exact packet codec, the MD5-based
// body obfuscation of RFC8907 Section 4.5, and a connection multiplexer that
// drives Authentication, Authorization, and Accounting (AAA) exchanges over
// a single TCP stream.
package tacplus

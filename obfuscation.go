package tacplus

import (
	"crypto/md5"
	"encoding/binary"
)

// Obfuscate applies the TACACS+ body obfuscation defined in RFC8907
// Section 4.5 and returns the result as a new slice. The operation is a
// XOR against an MD5-derived pseudo-pad and is therefore symmetric: applying
// it twice yields the original body.
//
// If the secret is empty, the body is empty, or the header carries the
// unencrypted flag, the body is returned unchanged.
func Obfuscate(header *Header, secret, body []byte) []byte {
	if len(secret) == 0 || len(body) == 0 || header.IsUnencrypted() {
		return body
	}

	out := make([]byte, len(body))
	copy(out, body)
	ObfuscateInPlace(header, secret, out)
	return out
}

// ObfuscateInPlace XORs the pseudo-pad into body without allocating a pad.
// The pad is produced one MD5 block at a time, so at most one 16-byte digest
// is live regardless of body length.
func ObfuscateInPlace(header *Header, secret, body []byte) {
	if len(secret) == 0 || len(body) == 0 || header.IsUnencrypted() {
		return
	}

	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], header.SessionID)

	var prev [md5.Size]byte

	for offset := 0; offset < len(body); offset += md5.Size {
		h := md5.New()
		h.Write(seed[:])
		h.Write(secret)
		h.Write([]byte{header.Version, header.SeqNo})
		if offset > 0 {
			h.Write(prev[:])
		}
		h.Sum(prev[:0])

		block := body[offset:]
		if len(block) > md5.Size {
			block = block[:md5.Size]
		}
		for i := range block {
			block[i] ^= prev[i]
		}
	}
}

// generatePseudoPad produces length bytes of the RFC8907 pseudo-pad:
// successive MD5 digests of session_id + secret + version + seq_no, each
// round chained with the previous digest, truncated to length.
func generatePseudoPad(header *Header, secret []byte, length int) []byte {
	if length <= 0 {
		return nil
	}

	var seed [4]byte
	binary.BigEndian.PutUint32(seed[:], header.SessionID)

	pad := make([]byte, 0, length)
	var prev []byte

	for len(pad) < length {
		h := md5.New()
		h.Write(seed[:])
		h.Write(secret)
		h.Write([]byte{header.Version, header.SeqNo})
		h.Write(prev)
		digest := h.Sum(nil)

		pad = append(pad, digest...)
		prev = digest
	}

	return pad[:length]
}

// isBadSecretError reports whether a body length mismatch looks like the
// result of deobfuscating with a wrong secret rather than a short read. A
// wrong pad turns length prefixes into noise, so the calculated length
// typically dwarfs the actual frame.
func isBadSecretError(actual, calculated int) bool {
	return calculated > actual*2 && calculated-actual > 64
}

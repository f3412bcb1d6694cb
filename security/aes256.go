package security

// AES-256 (R5/R6) authentication per ISO 32000-2 §7.6.4.3.3/.4 and the
// Algorithm 2.B iterated hash.

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"

	"golang.org/x/text/secure/precis"
)

// prepPassword applies the UTF-8 password preprocessing required for R6
// and truncates to the 127-byte limit. Preprocessing failures fall back to
// the raw bytes, matching the lenient behavior of common viewers.
func prepPassword(pwd []byte) []byte {
	if out, err := precis.OpaqueString.Bytes(pwd); err == nil {
		pwd = out
	}
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	return pwd
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	pwd = prepPassword(pwd)
	if len(h.uEntry) >= 48 && len(h.ue) >= 32 {
		if key, ok, err := deriveAES256User(pwd, h.uEntry, h.ue); err == nil && ok {
			h.key = key
			h.applyPermsEntry()
			return nil
		}
	}
	if len(h.oEntry) >= 48 && len(h.oe) >= 32 && len(h.uEntry) >= 48 {
		if key, ok, err := deriveAES256Owner(pwd, h.oEntry, h.oe, h.uEntry); err == nil && ok {
			h.key = key
			h.applyPermsEntry()
			return nil
		}
	}
	return ErrInvalidPassword
}

func deriveAES256User(pwd, uEntry, ue []byte) ([]byte, bool, error) {
	validationSalt := uEntry[32:40]
	keySalt := uEntry[40:48]
	if !bytes.Equal(hash2B(pwd, validationSalt, nil), uEntry[:32]) {
		return nil, false, nil
	}
	intermediate := hash2B(pwd, keySalt, nil)
	fileKey, err := aesCBCNoPad(intermediate, zeroIV(), ue[:32], false)
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

// deriveAES256Owner hashes with the full 48-byte U entry as extra data.
func deriveAES256Owner(pwd, oEntry, oe, uEntry []byte) ([]byte, bool, error) {
	validationSalt := oEntry[32:40]
	keySalt := oEntry[40:48]
	if !bytes.Equal(hash2B(pwd, validationSalt, uEntry[:48]), oEntry[:32]) {
		return nil, false, nil
	}
	intermediate := hash2B(pwd, keySalt, uEntry[:48])
	fileKey, err := aesCBCNoPad(intermediate, zeroIV(), oe[:32], false)
	if err != nil {
		return nil, false, err
	}
	return fileKey, true, nil
}

// applyPermsEntry validates /Perms against the file key and prefers the P
// value sealed inside it. A malformed entry leaves the dictionary P as-is.
func (h *standardHandler) applyPermsEntry() {
	if len(h.permsEntry) != 16 || h.key == nil {
		return
	}
	out, err := aesECBBlock(h.key, h.permsEntry, false)
	if err != nil {
		return
	}
	if !bytes.Equal(out[9:12], []byte("adb")) {
		return
	}
	h.p = int32(binary.LittleEndian.Uint32(out[0:4]))
}

// hash2B implements Algorithm 2.B: an iterated SHA-256/384/512 hash keyed
// by AES-CBC rounds. udata is the 48-byte U entry for owner hashes, nil for
// user hashes.
func hash2B(pwd, salt, udata []byte) []byte {
	input := make([]byte, 0, len(pwd)+len(salt)+len(udata))
	input = append(input, pwd...)
	input = append(input, salt...)
	input = append(input, udata...)
	sum := sha256.Sum256(input)
	k := sum[:]

	for round := 0; ; round++ {
		unit := make([]byte, 0, len(pwd)+len(k)+len(udata))
		unit = append(unit, pwd...)
		unit = append(unit, k...)
		unit = append(unit, udata...)
		// 64 repetitions keep the block AES-aligned for any unit length.
		k1 := bytes.Repeat(unit, 64)
		e, err := aesCBCNoPad(k[:16], k[16:32], k1, true)
		if err != nil {
			return k[:32]
		}
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			break
		}
	}
	return k[:32]
}

func zeroIV() []byte { return make([]byte, 16) }

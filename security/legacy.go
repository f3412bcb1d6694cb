package security

// Legacy (R2-R4) password algorithms: RC4/AES-128 key derivation and the
// user/owner password checks from ISO 32000-1 §7.6.3.

import (
	"crypto/md5"
	"encoding/binary"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding[:32-n])
	return padded
}

func (h *standardHandler) authenticateLegacy(pwd []byte) error {
	keyLen := h.lengthBits / 8
	if keyLen <= 0 {
		keyLen = 5
	}
	if keyLen > 16 {
		keyLen = 16
	}

	// Try as user password.
	key := legacyFileKey(padPassword(pwd), h.oEntry, h.p, h.fileID, keyLen, h.r, h.encryptMeta)
	if checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		h.key = key
		return nil
	}

	// Try as owner password: recover the padded user password from /O,
	// then run the user check with it.
	userPad := recoverUserPassword(pwd, h.oEntry, keyLen, h.r)
	key = legacyFileKey(userPad, h.oEntry, h.p, h.fileID, keyLen, h.r, h.encryptMeta)
	if checkUserPassword(key, h.uEntry, h.fileID, h.r) {
		h.key = key
		return nil
	}
	return ErrInvalidPassword
}

// legacyFileKey implements Algorithm 2: derive the file encryption key from
// an already padded password.
func legacyFileKey(paddedPwd, oEntry []byte, pVal int32, fileID []byte, keyLen, r int, encryptMeta bool) []byte {
	data := make([]byte, 0, 32+len(oEntry)+8+len(fileID))
	data = append(data, paddedPwd...)
	data = append(data, oEntry...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}

	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// ownerKey implements Algorithm 3 steps a-d: the RC4 key protecting /O.
func ownerKey(ownerPwd []byte, keyLen, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// recoverUserPassword decrypts /O with the owner key, yielding the padded
// user password when ownerPwd is the owner password.
func recoverUserPassword(ownerPwd, oEntry []byte, keyLen, r int) []byte {
	key := ownerKey(ownerPwd, keyLen, r)
	out := append([]byte(nil), oEntry...)
	if r == 2 {
		return rc4Simple(key, out)
	}
	for i := 19; i >= 0; i-- {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		out = rc4Simple(step, out)
	}
	return out
}

func checkUserPassword(key, uEntry, fileID []byte, r int) bool {
	if len(uEntry) < 16 {
		return false
	}
	if r == 2 {
		expect := rc4Simple(key, passwordPadding)
		return comparePrefix(expect[:16], uEntry)
	}
	// R>=3: RC4 of MD5(padding || fileID) iterated 20 times with key XOR i.
	h := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	val := h[:]
	for i := 0; i < 20; i++ {
		step := make([]byte, len(key))
		for j := range key {
			step[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(step, val)
	}
	return comparePrefix(val[:16], uEntry)
}

// objectKey derives the per-object key. R5+ uses the file key directly.
func objectKey(fileKey []byte, objNum, gen, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte(nil), fileKey...)
	key = append(key,
		byte(objNum), byte(objNum>>8), byte(objNum>>16),
		byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hash := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return hash[:n]
}

func comparePrefix(a, b []byte) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

package security

// Encrypt-side builders. The writer uses these to produce protected
// documents; the round-trip tests rely on them for fixtures.

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/wudi/pdfpipe/raw"
)

// PermissionsValue builds the Standard security handler P flags.
func PermissionsValue(p raw.Permissions) int32 {
	val := int32(-4) // bits 1-2 are reserved and must be 0
	if !p.Print {
		val &^= 1 << 2
	}
	if !p.Modify {
		val &^= 1 << 3
	}
	if !p.Copy {
		val &^= 1 << 4
	}
	if !p.ModifyAnnotations {
		val &^= 1 << 5
	}
	if !p.FillForms {
		val &^= 1 << 8
	}
	if !p.ExtractAccessible {
		val &^= 1 << 9
	}
	if !p.Assemble {
		val &^= 1 << 10
	}
	if !p.PrintHighQuality {
		val &^= 1 << 11
	}
	return val
}

// BuildStandardEncryption constructs a V1/R2 (40-bit RC4) /Encrypt
// dictionary for the given passwords.
func BuildStandardEncryption(userPwd, ownerPwd string, permissions raw.Permissions, fileID []byte) (*raw.DictObj, error) {
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	userPad := padPassword([]byte(userPwd))
	ownerPad := padPassword([]byte(ownerPwd))

	ownerDigest := md5.Sum(ownerPad)
	oVal := rc4Simple(ownerDigest[:5], userPad)
	pVal := PermissionsValue(permissions)
	fileKey := legacyFileKey(userPad, oVal, pVal, fileID, 5, 2, true)
	uVal := rc4Simple(fileKey, passwordPadding)

	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(1))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(2))
	enc.Set(raw.NameLiteral("Length"), raw.NumberInt(40))
	enc.Set(raw.NameLiteral("O"), raw.Str(oVal))
	enc.Set(raw.NameLiteral("U"), raw.Str(uVal))
	enc.Set(raw.NameLiteral("P"), raw.NumberInt(int64(pVal)))
	return enc, nil
}

// BuildAES256Encryption constructs a V5/R6 (AES-256) /Encrypt dictionary.
func BuildAES256Encryption(userPwd, ownerPwd string, permissions raw.Permissions, encryptMetadata bool) (*raw.DictObj, error) {
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	user := prepPassword([]byte(userPwd))
	owner := prepPassword([]byte(ownerPwd))

	fileKey := make([]byte, 32)
	salts := make([]byte, 32)
	if _, err := rand.Read(fileKey); err != nil {
		return nil, err
	}
	if _, err := rand.Read(salts); err != nil {
		return nil, err
	}
	uvs, uks := salts[0:8], salts[8:16]
	ovs, oks := salts[16:24], salts[24:32]

	uVal := make([]byte, 0, 48)
	uVal = append(uVal, hash2B(user, uvs, nil)...)
	uVal = append(uVal, uvs...)
	uVal = append(uVal, uks...)
	ueVal, err := aesCBCNoPad(hash2B(user, uks, nil), zeroIV(), fileKey, true)
	if err != nil {
		return nil, err
	}

	oVal := make([]byte, 0, 48)
	oVal = append(oVal, hash2B(owner, ovs, uVal)...)
	oVal = append(oVal, ovs...)
	oVal = append(oVal, oks...)
	oeVal, err := aesCBCNoPad(hash2B(owner, oks, uVal), zeroIV(), fileKey, true)
	if err != nil {
		return nil, err
	}

	pVal := PermissionsValue(permissions)
	permsPlain := make([]byte, 16)
	binary.LittleEndian.PutUint32(permsPlain[0:4], uint32(pVal))
	copy(permsPlain[4:8], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	if encryptMetadata {
		permsPlain[8] = 'T'
	} else {
		permsPlain[8] = 'F'
	}
	copy(permsPlain[9:12], "adb")
	if _, err := rand.Read(permsPlain[12:16]); err != nil {
		return nil, err
	}
	permsVal, err := aesECBBlock(fileKey, permsPlain, true)
	if err != nil {
		return nil, fmt.Errorf("seal perms: %w", err)
	}

	stdCF := raw.Dict()
	stdCF.Set(raw.NameLiteral("CFM"), raw.NameLiteral("AESV3"))
	stdCF.Set(raw.NameLiteral("AuthEvent"), raw.NameLiteral("DocOpen"))
	stdCF.Set(raw.NameLiteral("Length"), raw.NumberInt(32))
	cf := raw.Dict()
	cf.Set(raw.NameLiteral("StdCF"), stdCF)

	enc := raw.Dict()
	enc.Set(raw.NameLiteral("Filter"), raw.NameLiteral("Standard"))
	enc.Set(raw.NameLiteral("V"), raw.NumberInt(5))
	enc.Set(raw.NameLiteral("R"), raw.NumberInt(6))
	enc.Set(raw.NameLiteral("Length"), raw.NumberInt(256))
	enc.Set(raw.NameLiteral("CF"), cf)
	enc.Set(raw.NameLiteral("StmF"), raw.NameLiteral("StdCF"))
	enc.Set(raw.NameLiteral("StrF"), raw.NameLiteral("StdCF"))
	enc.Set(raw.NameLiteral("O"), raw.Str(oVal))
	enc.Set(raw.NameLiteral("U"), raw.Str(uVal))
	enc.Set(raw.NameLiteral("OE"), raw.Str(oeVal))
	enc.Set(raw.NameLiteral("UE"), raw.Str(ueVal))
	enc.Set(raw.NameLiteral("P"), raw.NumberInt(int64(pVal)))
	enc.Set(raw.NameLiteral("Perms"), raw.Str(permsVal))
	if !encryptMetadata {
		enc.Set(raw.NameLiteral("EncryptMetadata"), raw.Bool(false))
	}
	return enc, nil
}

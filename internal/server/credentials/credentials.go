// Package credentials hashes and verifies user passwords with argon2id.
package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	SaltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32

	randomPasswordSize = 32
)

// HashPassword derives a hash of password under a fresh random salt.
func HashPassword(password string) (salt, hash []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, derive(password, salt), nil
}

// VerifyPassword recomputes the hash under salt and compares it with hash in
// constant time.
func VerifyPassword(password string, salt, hash []byte) bool {
	if len(salt) == 0 || len(hash) == 0 {
		return false
	}
	got := derive(password, salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, hash) == 1
}

// RandomPassword returns an unguessable password for accounts that never log
// in locally.
func RandomPassword() (string, error) {
	return common.MakeRandHexString(randomPasswordSize)
}

func derive(password string, salt []byte) []byte {
	pw := []byte(password)
	defer common.WipeByteArray(pw)
	return argon2.IDKey(pw, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

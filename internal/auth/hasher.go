package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Current argon2id parameters. Hashes stored with weaker parameters verify
// fine but report needsRehash, so the caller can transparently upgrade them
// on the next successful login.
const (
	argonMemory      uint32 = 64 * 1024
	argonTime        uint32 = 3
	argonParallelism uint8  = 2
	argonSaltLength  uint32 = 16
	argonKeyLength   uint32 = 32
)

type hashParams struct {
	version     int
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// HashPassword derives an argon2id hash with a fresh random salt and returns
// it in PHC form: $argon2id$v=19$m=...,t=...,p=...$salt$digest
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifyPassword recomputes the digest with the salt and parameters embedded
// in the stored form and compares in constant time. needsRehash is true when
// the stored parameters are weaker than the current defaults. Malformed
// stored forms verify false rather than erroring.
func VerifyPassword(password, stored string) (valid, needsRehash bool) {
	p, err := parseHash(stored)
	if err != nil {
		return false, false
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.digest)))
	if subtle.ConstantTimeCompare(computed, p.digest) != 1 {
		return false, false
	}

	needsRehash = p.version < argon2.Version ||
		p.memory < argonMemory ||
		p.time < argonTime ||
		p.parallelism < argonParallelism ||
		uint32(len(p.digest)) < argonKeyLength
	return true, needsRehash
}

func parseHash(stored string) (*hashParams, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported hash format")
	}

	var p hashParams
	if _, err := fmt.Sscanf(parts[2], "v=%d", &p.version); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding digest: %w", err)
	}
	if len(p.salt) == 0 || len(p.digest) == 0 {
		return nil, fmt.Errorf("empty salt or digest")
	}

	return &p, nil
}

// dummyHash is verified against when a login targets an unknown email, so
// the response time does not distinguish "no such user" from "wrong password".
var dummyHash = func() string {
	h, err := HashPassword("schoolhub-dummy-password")
	if err != nil {
		panic(err)
	}
	return h
}()

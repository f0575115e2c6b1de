// Package crypto provides cryptographic utilities for Helpdesk.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidHash indicates a stored hash is malformed or uses an unsupported scheme.
var ErrInvalidHash = errors.New("invalid password hash")

// PasswordHasher turns raw passwords into stored hashes and checks them later.
// Verify returns (false, nil) on a plain mismatch and an error only for
// malformed hashes or internal failures.
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, encoded string) (bool, error)
}

// =============================================================================
// bcrypt
// =============================================================================

// BcryptSHA256Prefix marks bcrypt hashes computed over the SHA-256 hex digest
// of the password, which lifts bcrypt's 72 byte input limit.
const BcryptSHA256Prefix = "bcrypt_sha256$"

// bcryptMaxInput is the longest input bcrypt accepts.
const bcryptMaxInput = 72

// BcryptHasher hashes with bcrypt at a fixed cost. New hashes are written as
// BcryptSHA256Prefix + bcrypt(sha256hex(raw)); plain bcrypt hashes still verify.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher creates a bcrypt hasher. Out-of-range costs use bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash implements PasswordHasher.
func (h *BcryptHasher) Hash(raw string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(ComputeSHA256([]byte(raw))), h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return BcryptSHA256Prefix + string(out), nil
}

// Verify implements PasswordHasher.
func (h *BcryptHasher) Verify(raw, encoded string) (bool, error) {
	input := []byte(raw)
	if rest, ok := strings.CutPrefix(encoded, BcryptSHA256Prefix); ok {
		encoded = rest
		input = []byte(ComputeSHA256(input))
	} else if len(input) > bcryptMaxInput {
		// a plain bcrypt hash can never have been made from this input
		if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
		}
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(encoded), input)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
}

// =============================================================================
// argon2id
// =============================================================================

const argon2Version = 19

// Argon2idParams are the tunable argon2id parameters.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2idParams returns conservative interactive-login parameters.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2idHasher hashes with argon2id and encodes the result in PHC string format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
type Argon2idHasher struct {
	Params Argon2idParams
}

// NewArgon2idHasher creates an argon2id hasher. Zero salt/key lengths get defaults.
func NewArgon2idHasher(p Argon2idParams) *Argon2idHasher {
	def := DefaultArgon2idParams()
	if p.SaltLength == 0 {
		p.SaltLength = def.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = def.KeyLength
	}
	if p.MemoryKiB == 0 {
		p.MemoryKiB = def.MemoryKiB
	}
	if p.Iterations == 0 {
		p.Iterations = def.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = def.Parallelism
	}
	return &Argon2idHasher{Params: p}
}

// Hash implements PasswordHasher.
func (h *Argon2idHasher) Hash(raw string) (string, error) {
	salt := make([]byte, h.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(raw), salt, h.Params.Iterations, h.Params.MemoryKiB, h.Params.Parallelism, h.Params.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.Params.MemoryKiB,
		h.Params.Iterations,
		h.Params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify implements PasswordHasher.
func (h *Argon2idHasher) Verify(raw, encoded string) (bool, error) {
	params, salt, expected, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}

	// Refuse attacker-sized parameters far beyond what we hash with.
	if params.MemoryKiB > h.Params.MemoryKiB*2 || params.Iterations > h.Params.Iterations*2 ||
		params.Parallelism > h.Params.Parallelism*2 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(raw), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeArgon2id(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}, salt, key, nil
}

// =============================================================================
// Dispatch
// =============================================================================

// MultiHasher hashes with a primary algorithm and verifies any supported one,
// so switching the configured algorithm keeps existing hashes valid.
type MultiHasher struct {
	primary PasswordHasher
	bcrypt  *BcryptHasher
	argon2  *Argon2idHasher
}

// NewMultiHasher creates a dispatching hasher. primary selects the algorithm
// for new hashes: "bcrypt" or "argon2id".
func NewMultiHasher(primary string, bcryptCost int, argon2Params Argon2idParams) (*MultiHasher, error) {
	m := &MultiHasher{
		bcrypt: NewBcryptHasher(bcryptCost),
		argon2: NewArgon2idHasher(argon2Params),
	}
	switch primary {
	case "bcrypt":
		m.primary = m.bcrypt
	case "argon2id":
		m.primary = m.argon2
	default:
		return nil, fmt.Errorf("unsupported password hasher %q", primary)
	}
	return m, nil
}

// Hash implements PasswordHasher.
func (m *MultiHasher) Hash(raw string) (string, error) {
	return m.primary.Hash(raw)
}

// Verify implements PasswordHasher.
func (m *MultiHasher) Verify(raw, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return m.argon2.Verify(raw, encoded)
	case strings.HasPrefix(encoded, BcryptSHA256Prefix),
		strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return m.bcrypt.Verify(raw, encoded)
	default:
		return false, ErrInvalidHash
	}
}

// Ensure hashers implement PasswordHasher
var (
	_ PasswordHasher = (*BcryptHasher)(nil)
	_ PasswordHasher = (*Argon2idHasher)(nil)
	_ PasswordHasher = (*MultiHasher)(nil)
)

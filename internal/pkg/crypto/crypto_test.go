package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() Argon2idParams {
	return Argon2idParams{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1}
}

func TestHashers_RoundTrip(t *testing.T) {
	hashers := map[string]PasswordHasher{
		"bcrypt":   NewBcryptHasher(bcrypt.MinCost),
		"argon2id": NewArgon2idHasher(fastArgon2()),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			encoded, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotContains(t, encoded, "correct horse")

			ok, err := h.Verify("correct horse", encoded)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify("wrong horse", encoded)
			require.NoError(t, err)
			assert.False(t, ok)

			again, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotEqual(t, encoded, again, "hashes must be salted")
		})
	}
}

func TestArgon2idHasher_Format(t *testing.T) {
	h := NewArgon2idHasher(fastArgon2())
	encoded, err := h.Hash("pw")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$"), encoded)
	assert.Len(t, strings.Split(encoded, "$"), 6)
}

func TestArgon2idHasher_RejectsMalformed(t *testing.T) {
	h := NewArgon2idHasher(fastArgon2())

	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5a2V5a2V5a2V5a2V5a2V5",
		// memory far above configured limit
		"$argon2id$v=19$m=1048576,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := h.Verify("pw", encoded)
		assert.False(t, ok, encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
	}
}

func TestBcryptHasher_MalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	ok, err := h.Verify("pw", "not-a-bcrypt-hash")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestBcryptHasher_LongPasswords(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	long := strings.Repeat("a", 80)

	encoded, err := h.Hash(long)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, BcryptSHA256Prefix))

	ok, err := h.Verify(long, encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	// differs only past bcrypt's 72 byte window
	ok, err = h.Verify(strings.Repeat("a", 79)+"b", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasher_VerifiesPlainBcrypt(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	plain, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := h.Verify("pw", string(plain))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(strings.Repeat("p", 80), string(plain))
	require.NoError(t, err)
	assert.False(t, ok)

	m, err := NewMultiHasher("argon2id", bcrypt.MinCost, fastArgon2())
	require.NoError(t, err)
	ok, err = m.Verify("pw", string(plain))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewBcryptHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(1).Cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).Cost)
	assert.Equal(t, 12, NewBcryptHasher(12).Cost)
}

func TestMultiHasher_VerifiesBothSchemes(t *testing.T) {
	bcryptPrimary, err := NewMultiHasher("bcrypt", bcrypt.MinCost, fastArgon2())
	require.NoError(t, err)
	argonPrimary, err := NewMultiHasher("argon2id", bcrypt.MinCost, fastArgon2())
	require.NoError(t, err)

	fromBcrypt, err := bcryptPrimary.Hash("pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fromBcrypt, BcryptSHA256Prefix+"$2"))

	fromArgon, err := argonPrimary.Hash("pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fromArgon, "$argon2id$"))

	for _, h := range []*MultiHasher{bcryptPrimary, argonPrimary} {
		for _, encoded := range []string{fromBcrypt, fromArgon} {
			ok, err := h.Verify("pw", encoded)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	}

	ok, err := bcryptPrimary.Verify("pw", "md5$abc")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = NewMultiHasher("md5", 10, fastArgon2())
	assert.Error(t, err)
}

func TestGenerateTokenKey(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		key, err := GenerateTokenKey(20)
		require.NoError(t, err)
		assert.Len(t, key, 40)
		assert.NoError(t, ValidateTokenKey(key, 20))
		_, dup := seen[key]
		assert.False(t, dup)
		seen[key] = struct{}{}
	}

	_, err := GenerateTokenKey(0)
	assert.Error(t, err)
}

func TestValidateTokenKey(t *testing.T) {
	assert.ErrorIs(t, ValidateTokenKey("abc", 20), ErrInvalidTokenKey)
	assert.ErrorIs(t, ValidateTokenKey(strings.Repeat("z", 40), 20), ErrInvalidTokenKey)
	assert.NoError(t, ValidateTokenKey(strings.Repeat("a", 40), 20))
}

func TestComputeSHA256(t *testing.T) {
	sum := ComputeSHA256([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}

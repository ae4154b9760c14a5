package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheap = Params{N: 1 << 4, R: 8, P: 1}

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(cheap)

	cred, err := h.Hash("password1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred, CredentialPrefix+"$1$16$8$1$"))
	assert.NotContains(t, cred, "password1")

	ok, err := h.Verify("password1", cred)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("password2", cred)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := NewHasher(cheap)
	a, err := h.Hash("same-password")
	require.NoError(t, err)
	b, err := h.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyUsesStoredParams(t *testing.T) {
	cred, err := NewHasher(cheap).Hash("password1")
	require.NoError(t, err)

	ok, err := NewHasher(Params{N: 1 << 5, R: 8, P: 1}).Verify("password1", cred)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsMalformedCredential(t *testing.T) {
	h := NewHasher(cheap)
	tests := []string{
		"",
		"password1",
		"bcrypt$1$16$8$1$AAAA$AAAA",
		"scrypt$2$16$8$1$AAAA$AAAA",
		"scrypt$1$x$8$1$AAAA$AAAA",
		"scrypt$1$16$8$1$!!!$AAAA",
	}
	for _, cred := range tests {
		_, err := h.Verify("password1", cred)
		assert.ErrorIs(t, err, ErrInvalidCredential, "credential %q", cred)
	}
}

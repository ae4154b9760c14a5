// Package secrets turns passwords into opaque stored credentials and checks them.
package secrets

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// CredentialPrefix marks values produced by HashPassword.
	CredentialPrefix = "scrypt"
	// payloadVersion allows us to evolve the credential format while remaining backward compatible.
	payloadVersion = 1

	saltSize = 16
	keySize  = 32
)

// Params are the scrypt cost parameters.
type Params struct {
	N int
	R int
	P int
}

// DefaultParams matches the interactive-login recommendation for scrypt.
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

var (
	// ErrInvalidCredential indicates a stored credential is malformed.
	ErrInvalidCredential = errors.New("invalid stored credential")
)

// Hasher hashes and verifies passwords with fixed cost parameters.
type Hasher struct {
	params Params
}

// NewHasher returns a Hasher using params. Tests use cheap parameters.
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash derives a credential string from password using a fresh random salt.
// Format: scrypt$<version>$<N>$<r>$<p>$<salt>$<key>, base64 without padding.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := deriveKey(password, salt, h.params)
	if err != nil {
		return "", err
	}

	enc := base64.RawStdEncoding
	return strings.Join([]string{
		CredentialPrefix,
		strconv.Itoa(payloadVersion),
		strconv.Itoa(h.params.N),
		strconv.Itoa(h.params.R),
		strconv.Itoa(h.params.P),
		enc.EncodeToString(salt),
		enc.EncodeToString(key),
	}, "$"), nil
}

// Verify reports whether password matches credential. The parameters stored in the
// credential are used, so credentials outlive a change of DefaultParams.
func (h *Hasher) Verify(password, credential string) (bool, error) {
	params, salt, want, err := parseCredential(credential)
	if err != nil {
		return false, err
	}

	got, err := deriveKey(password, salt, params)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parseCredential(credential string) (Params, []byte, []byte, error) {
	parts := strings.Split(credential, "$")
	if len(parts) != 7 || parts[0] != CredentialPrefix {
		return Params{}, nil, nil, ErrInvalidCredential
	}
	if v, err := strconv.Atoi(parts[1]); err != nil || v != payloadVersion {
		return Params{}, nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidCredential, parts[1])
	}

	var nums [3]int
	for i := range nums {
		n, err := strconv.Atoi(parts[2+i])
		if err != nil || n <= 0 {
			return Params{}, nil, nil, fmt.Errorf("%w: bad cost parameter %q", ErrInvalidCredential, parts[2+i])
		}
		nums[i] = n
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: decode salt: %v", ErrInvalidCredential, err)
	}
	key, err := enc.DecodeString(parts[6])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: decode key: %v", ErrInvalidCredential, err)
	}
	return Params{N: nums[0], R: nums[1], P: nums[2]}, salt, key, nil
}

func deriveKey(password string, salt []byte, params Params) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

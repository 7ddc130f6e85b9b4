package handshake

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workspace-assistant/internal/common/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newSigner(t *testing.T, now *time.Time) *StateSigner {
	t.Helper()
	signer, err := NewStateSigner(testSecret)
	require.NoError(t, err)
	signer.now = func() time.Time { return *now }
	return signer
}

func TestNewStateSigner_ShortSecret(t *testing.T) {
	_, err := NewStateSigner("too-short")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestStateSigner_RoundTrip(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_000)
	signer := newSigner(t, &now)

	state, err := signer.Sign()
	require.NoError(t, err)

	parts := strings.Split(state.Token, ".")
	require.Len(t, parts, 3)
	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), parts[1])
	assert.Equal(t, state.Nonce, parts[0])

	verified, err := signer.Verify(state.Token)
	require.NoError(t, err)
	assert.Equal(t, state.Nonce, verified.Nonce)
	assert.True(t, state.IssuedAt.Equal(verified.IssuedAt))
}

func TestStateSigner_NoncesDiffer(t *testing.T) {
	now := time.Now()
	signer := newSigner(t, &now)

	a, err := signer.Sign()
	require.NoError(t, err)
	b, err := signer.Sign()
	require.NoError(t, err)
	assert.NotEqual(t, a.Nonce, b.Nonce)
}

func TestStateSigner_Lifetime(t *testing.T) {
	issued := time.UnixMilli(1_760_000_000_000)
	now := issued
	signer := newSigner(t, &now)

	state, err := signer.Sign()
	require.NoError(t, err)

	now = issued.Add(StateLifetime - time.Millisecond)
	_, err = signer.Verify(state.Token)
	assert.NoError(t, err)

	now = issued.Add(StateLifetime)
	_, err = signer.Verify(state.Token)
	assert.ErrorIs(t, err, ErrStateExpired)

	now = issued.Add(-2 * clockSkew)
	_, err = signer.Verify(state.Token)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateSigner_RejectsTampering(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_000)
	signer := newSigner(t, &now)
	state, err := signer.Sign()
	require.NoError(t, err)

	// Flip every bit of every character; none may verify.
	token := []byte(state.Token)
	for i := range token {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), token...)
			mutated[i] ^= 1 << bit
			_, err := signer.Verify(string(mutated))
			require.Error(t, err, "position %d bit %d", i, bit)
		}
	}
}

func TestStateSigner_RejectsMalformed(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_000)
	signer := newSigner(t, &now)
	state, err := signer.Sign()
	require.NoError(t, err)
	parts := strings.Split(state.Token, ".")

	other, err := NewStateSigner(strings.Repeat("z", MinSecretLength))
	require.NoError(t, err)
	other.now = signer.now
	foreign, err := other.Sign()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two segments", parts[0] + "." + parts[1]},
		{"four segments", state.Token + ".x"},
		{"padded timestamp", parts[0] + ".0" + parts[1] + "." + parts[2]},
		{"signed timestamp", parts[0] + ".+" + parts[1] + "." + parts[2]},
		{"other timestamp", parts[0] + "." + strconv.FormatInt(now.UnixMilli()+1, 10) + "." + parts[2]},
		{"short nonce", "AAAA." + parts[1] + "." + parts[2]},
		{"padded base64", parts[0] + "=." + parts[1] + "." + parts[2]},
		{"foreign secret", foreign.Token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}
}

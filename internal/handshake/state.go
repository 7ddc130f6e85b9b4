// Package handshake runs the OAuth sign-in flow: it issues a signed,
// time-bounded state token, verifies it on callback, exchanges the code,
// resolves the user's identity, stores the credential and establishes the
// session.
package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/common/utils"
)

const (
	// StateLifetime is how long a signed state verifies after issue
	StateLifetime = 10 * time.Minute
	// MinSecretLength is the shortest accepted HMAC secret
	MinSecretLength = 32

	nonceSize = 32
	clockSkew = time.Minute
)

var (
	// ErrInvalidState covers missing, malformed, unsigned and tampered tokens alike
	ErrInvalidState = stderrors.New("invalid oauth state")
	// ErrStateExpired is returned for a correctly signed token past StateLifetime
	ErrStateExpired = stderrors.New("oauth state expired")
)

var b64 = base64.RawURLEncoding.Strict()

// State is a verified or freshly issued state token
type State struct {
	Token    string
	Nonce    string
	IssuedAt time.Time
}

// StateSigner issues and verifies tokens of the form
// base64url(nonce) "." issuedAtMillis "." base64url(HMAC-SHA256(nonce || issuedAtMillis)).
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

func NewStateSigner(secret string) (*StateSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, errors.ConfigError("STATE_SECRET must be at least 32 characters")
	}
	return &StateSigner{secret: []byte(secret), now: time.Now}, nil
}

// Sign issues a new state token
func (s *StateSigner) Sign() (*State, error) {
	nonce, err := utils.RandomBytes(nonceSize)
	if err != nil {
		return nil, errors.InternalError("failed to generate state nonce", err)
	}
	issuedAt := s.now().UnixMilli()
	issued := strconv.FormatInt(issuedAt, 10)

	encodedNonce := b64.EncodeToString(nonce)
	token := encodedNonce + "." + issued + "." + b64.EncodeToString(s.mac(nonce, issued))

	return &State{
		Token:    token,
		Nonce:    encodedNonce,
		IssuedAt: time.UnixMilli(issuedAt),
	}, nil
}

// Verify checks the signature in constant time, then the token age.
func (s *StateSigner) Verify(token string) (*State, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidState
	}

	nonce, err := b64.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, ErrInvalidState
	}
	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || issuedAt <= 0 || strconv.FormatInt(issuedAt, 10) != parts[1] {
		return nil, ErrInvalidState
	}
	signature, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, ErrInvalidState
	}

	if !hmac.Equal(signature, s.mac(nonce, parts[1])) {
		return nil, ErrInvalidState
	}

	now := s.now()
	issued := time.UnixMilli(issuedAt)
	if issued.After(now.Add(clockSkew)) {
		return nil, ErrInvalidState
	}
	if now.Sub(issued) >= StateLifetime {
		return nil, ErrStateExpired
	}

	return &State{Token: token, Nonce: parts[0], IssuedAt: issued}, nil
}

func (s *StateSigner) mac(nonce []byte, issuedAt string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(nonce)
	h.Write([]byte(issuedAt))
	return h.Sum(nil)
}

package credentials

import (
	"context"

	"workspace-assistant/internal/common/errors"
	"workspace-assistant/internal/crypto"
)

// SealedStore encrypts access and refresh tokens before they reach the
// wrapped store and decrypts them on the way out. Rows written before
// encryption was enabled are read back as plaintext.
type SealedStore struct {
	inner     Store
	encryptor *crypto.TokenEncryptor
}

func NewSealedStore(inner Store, encryptor *crypto.TokenEncryptor) *SealedStore {
	return &SealedStore{inner: inner, encryptor: encryptor}
}

func (s *SealedStore) Find(ctx context.Context, userID string) (*Record, error) {
	record, err := s.inner.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.open(record)
}

func (s *SealedStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	record, err := s.inner.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.open(record)
}

func (s *SealedStore) Upsert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	sealed := record.Clone()

	var err error
	if sealed.AccessToken, err = s.encryptor.Encrypt(record.AccessToken); err != nil {
		return errors.InternalError("failed to seal access token", err)
	}
	if record.RefreshToken != "" {
		if sealed.RefreshToken, err = s.encryptor.Encrypt(record.RefreshToken); err != nil {
			return errors.InternalError("failed to seal refresh token", err)
		}
	}
	return s.inner.Upsert(ctx, sealed)
}

func (s *SealedStore) open(record *Record) (*Record, error) {
	var err error
	if record.AccessToken, err = s.encryptor.Decrypt(record.AccessToken); err != nil {
		return nil, errors.InternalError("failed to open access token", err).WithContext("user_id", record.UserID)
	}
	if record.RefreshToken, err = s.encryptor.Decrypt(record.RefreshToken); err != nil {
		return nil, errors.InternalError("failed to open refresh token", err).WithContext("user_id", record.UserID)
	}
	return record, nil
}

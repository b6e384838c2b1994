package models

import "github.com/jimdaga/family-shield/internal/crypto"

var encryptor *crypto.TokenEncryptor

// InitEncryption initializes the field encryptor for the models package.
// Must be called before any database operations involving AuthIdentity or
// EmergencyAccessToken. When never called, secrets are stored as-is.
func InitEncryption(encryptionKey string) error {
	var err error
	encryptor, err = crypto.NewTokenEncryptor(encryptionKey)
	return err
}

func encryptField(value *string) error {
	if encryptor == nil || *value == "" {
		return nil
	}
	encrypted, err := encryptor.Encrypt(*value)
	if err != nil {
		return err
	}
	*value = encrypted
	return nil
}

func decryptField(value *string) error {
	if encryptor == nil || *value == "" {
		return nil
	}
	decrypted, err := encryptor.Decrypt(*value)
	if err != nil {
		return err
	}
	*value = decrypted
	return nil
}

// Package valicrypto provides encryption for data Vali keeps at rest,
// primarily the saved accounts book. Files are sealed with age using a
// passphrase-derived (scrypt) recipient, so they can also be opened with the
// standalone age tool.
package valicrypto

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// scryptWorkFactor is log2 of the scrypt N parameter used when sealing.
// The age default trades unlock latency for brute-force cost.
//
//nolint:gochecknoglobals // package-level tuning knob
var scryptWorkFactor = 18

// SetScryptWorkFactor overrides the scrypt work factor. Intended for tests,
// where the default makes every seal take seconds.
func SetScryptWorkFactor(logN int) {
	scryptWorkFactor = logN
}

// Encrypt encrypts plaintext using age with a passphrase-based recipient.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(scryptWorkFactor)

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}

	return buf.Bytes(), nil
}

// Decrypt decrypts ciphertext using age with a passphrase-based identity.
func Decrypt(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}

	return plaintext, nil
}

// DecryptSecure decrypts ciphertext into SecureBytes and zeroes the
// intermediate plaintext buffer.
func DecryptSecure(ciphertext []byte, passphrase string) (*SecureBytes, error) {
	plaintext, err := Decrypt(ciphertext, passphrase)
	if err != nil {
		return nil, err
	}

	defer func() {
		for i := range plaintext {
			plaintext[i] = 0
		}
	}()

	return SecureBytesFromSlice(plaintext)
}

// EncryptSecure encrypts the contents of SecureBytes.
func EncryptSecure(sb *SecureBytes, passphrase string) ([]byte, error) {
	data := sb.Bytes()
	if data == nil {
		return nil, nil
	}
	return Encrypt(data, passphrase)
}

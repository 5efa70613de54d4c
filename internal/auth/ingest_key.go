package auth

import "golang.org/x/crypto/bcrypt"

// IngestKeyVerifier checks the shared key the ticket store sends with lifecycle events.
type IngestKeyVerifier struct {
	hash []byte
}

// NewIngestKeyVerifier wraps a bcrypt hash. An empty hash disables key authentication.
func NewIngestKeyVerifier(hash string) *IngestKeyVerifier {
	return &IngestKeyVerifier{hash: []byte(hash)}
}

// Enabled reports whether a key hash is configured.
func (v *IngestKeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify compares a presented key against the stored hash.
func (v *IngestKeyVerifier) Verify(key string) bool {
	if !v.Enabled() || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(key)) == nil
}

// HashIngestKey hashes a plaintext key with the given cost.
func HashIngestKey(key string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

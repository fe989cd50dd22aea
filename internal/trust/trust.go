// Package trust gates downloaded artifacts behind signature
// verification against a locally bundled public key.
package trust

import (
	"encoding/base64"
	"fmt"
	"os"
)

// Verdict is the outcome of verifying one artifact.
type Verdict string

const (
	// Verified means the signature matched the artifact bytes.
	Verified Verdict = "verified"
	// NoSignaturePresent means the feed declared no signature. The
	// artifact may run, but callers must log a warning first; this is a
	// deliberate insecure default that is never silently accepted.
	NoSignaturePresent Verdict = "no-signature"
	// VerificationFailed means the signature did not match. The
	// artifact has already been deleted and must never be executed.
	VerificationFailed Verdict = "verification-failed"
)

// VerificationError reports a signature mismatch for an artifact. It
// is surfaced to the host as a security event, never swallowed.
type VerificationError struct {
	ArtifactPath string
	Err          error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact %s failed verification: %v", e.ArtifactPath, e.Err)
	}
	return fmt.Sprintf("artifact %s failed verification", e.ArtifactPath)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// Verify checks signature against the artifact bytes on disk using the
// public key at publicKeyPath.
//
// An empty signature returns NoSignaturePresent and touches nothing.
// On a mismatch the artifact file is deleted before returning, and the
// returned *VerificationError describes the failure. Key material and
// artifact bytes are read, never retained or mutated.
func Verify(signature, artifactPath, publicKeyPath string) (Verdict, error) {
	if signature == "" {
		return NoSignaturePresent, nil
	}

	publicKey, err := LoadPublicKey(publicKeyPath)
	if err != nil {
		return VerificationFailed, reject(artifactPath, err)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return VerificationFailed, reject(artifactPath, fmt.Errorf("failed to decode signature: %w", err))
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return VerificationFailed, reject(artifactPath, fmt.Errorf("failed to read artifact: %w", err))
	}

	if !verifyBytes(publicKey, data, sig) {
		return VerificationFailed, reject(artifactPath, nil)
	}

	return Verified, nil
}

// reject deletes the artifact and wraps the cause. Deletion is a
// mandatory side effect of every failed verification.
func reject(artifactPath string, cause error) error {
	_ = os.Remove(artifactPath)
	return &VerificationError{ArtifactPath: artifactPath, Err: cause}
}

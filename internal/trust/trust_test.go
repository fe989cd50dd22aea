package trust

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeSignedArtifact creates a keypair, an artifact, and a valid
// signature over it, returning all the paths plus the signature.
func writeSignedArtifact(t *testing.T, content []byte) (artifactPath, pubPath, privPath, signature string) {
	t.Helper()
	dir := t.TempDir()

	privPath = filepath.Join(dir, "signing.key")
	pubPath = filepath.Join(dir, "signing.pub")
	if err := GenerateKeyPair(privPath, pubPath); err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	artifactPath = filepath.Join(dir, "app-2.0.0.bin")
	if err := os.WriteFile(artifactPath, content, 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	signature, err := Sign(artifactPath, privPath)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	return artifactPath, pubPath, privPath, signature
}

func TestVerify_Valid(t *testing.T) {
	artifact, pub, _, sig := writeSignedArtifact(t, []byte("release payload"))

	verdict, err := Verify(sig, artifact, pub)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verdict != Verified {
		t.Errorf("Verify() = %v, want %v", verdict, Verified)
	}

	if _, err := os.Stat(artifact); err != nil {
		t.Error("verified artifact must stay on disk")
	}
}

func TestVerify_NoSignature(t *testing.T) {
	artifact, pub, _, _ := writeSignedArtifact(t, []byte("release payload"))

	verdict, err := Verify("", artifact, pub)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verdict != NoSignaturePresent {
		t.Errorf("Verify() = %v, want %v", verdict, NoSignaturePresent)
	}

	if _, err := os.Stat(artifact); err != nil {
		t.Error("unsigned artifact must stay on disk for the caller to decide")
	}
}

func TestVerify_TamperedArtifact(t *testing.T) {
	artifact, pub, _, sig := writeSignedArtifact(t, []byte("release payload"))

	// Flip a byte after signing.
	if err := os.WriteFile(artifact, []byte("release payloaX"), 0644); err != nil {
		t.Fatalf("Failed to tamper artifact: %v", err)
	}

	verdict, err := Verify(sig, artifact, pub)
	if verdict != VerificationFailed {
		t.Errorf("Verify() = %v, want %v", verdict, VerificationFailed)
	}

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %T, want *VerificationError", err)
	}
	if verr.ArtifactPath != artifact {
		t.Errorf("ArtifactPath = %s, want %s", verr.ArtifactPath, artifact)
	}

	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Error("tampered artifact must be deleted")
	}
}

func TestVerify_MismatchedSignature(t *testing.T) {
	artifact, pub, _, _ := writeSignedArtifact(t, []byte("release payload"))
	other, _, otherPriv, _ := writeSignedArtifact(t, []byte("different payload"))

	wrongSig, err := Sign(other, otherPriv)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	verdict, err := Verify(wrongSig, artifact, pub)
	if verdict != VerificationFailed {
		t.Errorf("Verify() = %v, want %v", verdict, VerificationFailed)
	}
	if err == nil {
		t.Error("Verify() should report the mismatch")
	}

	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Error("artifact with mismatched signature must be deleted")
	}
}

func TestVerify_GarbageSignature(t *testing.T) {
	artifact, pub, _, _ := writeSignedArtifact(t, []byte("release payload"))

	verdict, err := Verify("not!!base64", artifact, pub)
	if verdict != VerificationFailed {
		t.Errorf("Verify() = %v, want %v", verdict, VerificationFailed)
	}
	if err == nil {
		t.Error("Verify() should fail for an undecodable signature")
	}

	if _, err := os.Stat(artifact); !os.IsNotExist(err) {
		t.Error("artifact must be deleted when the signature cannot be decoded")
	}
}

func TestVerify_MissingKeyFile(t *testing.T) {
	artifact, _, _, sig := writeSignedArtifact(t, []byte("release payload"))

	verdict, err := Verify(sig, artifact, filepath.Join(t.TempDir(), "no-such.pub"))
	if verdict != VerificationFailed {
		t.Errorf("Verify() = %v, want %v", verdict, VerificationFailed)
	}
	if err == nil {
		t.Error("Verify() should fail when the key file is missing")
	}
}

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "k.key")
	pubPath := filepath.Join(dir, "k.pub")

	if err := GenerateKeyPair(privPath, pubPath); err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	priv, err := LoadPrivateKey(privPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey() error = %v", err)
	}
	pub, err := LoadPublicKey(pubPath)
	if err != nil {
		t.Fatalf("LoadPublicKey() error = %v", err)
	}

	if len(priv) == 0 || len(pub) == 0 {
		t.Fatal("loaded keys are empty")
	}

	info, err := os.Stat(privPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("private key mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestLoadPublicKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pub")
	if err := os.WriteFile(path, []byte("not a pem file"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := LoadPublicKey(path); err == nil {
		t.Error("Expected error for non-PEM content")
	}
}

func TestLoadPrivateKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.key")
	if err := os.WriteFile(path, []byte("not a pem file"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	if _, err := LoadPrivateKey(path); err == nil {
		t.Error("Expected error for non-PEM content")
	}
}

func TestSign_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	privPath := filepath.Join(dir, "k.key")
	pubPath := filepath.Join(dir, "k.pub")
	if err := GenerateKeyPair(privPath, pubPath); err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if _, err := Sign(filepath.Join(dir, "missing.bin"), privPath); err == nil {
		t.Error("Expected error for missing artifact")
	}
}

package trust

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadPublicKey loads an Ed25519 public key from a PEM file. Both
// PKIX-encoded and raw 32-byte key blocks are accepted.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode public key PEM")
	}

	// Try to parse as PKIX first (standard format)
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("public key is not Ed25519")
		}
		return pub, nil
	}

	if len(block.Bytes) == ed25519.PublicKeySize {
		// Raw Ed25519 format
		return ed25519.PublicKey(block.Bytes), nil
	}

	return nil, fmt.Errorf("unable to parse public key")
}

// LoadPrivateKey loads an Ed25519 private key from a PEM file. Both
// PKCS8-encoded and raw 64-byte key blocks are accepted.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	// Try to parse as PKCS8 first (standard format)
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not Ed25519")
		}
		return priv, nil
	}

	if len(block.Bytes) == ed25519.PrivateKeySize {
		// Raw Ed25519 format
		return ed25519.PrivateKey(block.Bytes), nil
	}

	return nil, fmt.Errorf("unable to parse private key")
}

// GenerateKeyPair writes a fresh Ed25519 keypair as PEM files
// (PKCS8 private, PKIX public).
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate keypair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privateKeyPath, privPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("failed to encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(publicKeyPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	return nil
}

// Sign signs the artifact at path with the private key at
// privateKeyPath and returns the base64 signature string a feed's
// signature field carries.
func Sign(artifactPath, privateKeyPath string) (string, error) {
	priv, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact: %w", err)
	}

	sig := ed25519.Sign(priv, data)
	return base64.StdEncoding.EncodeToString(sig), nil
}

func verifyBytes(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

var (
	// ErrKeysMissing is returned when a key file does not exist.
	ErrKeysMissing = errors.New("signing keys missing")
	// ErrKeysUnreadable is returned when a key file exists but cannot be read or parsed.
	ErrKeysUnreadable = errors.New("signing keys unreadable")
)

// DefaultRSABits is the key size used for generated keypairs.
const DefaultRSABits = 2048

const minRSABits = 2048

// Mode selects how a [Loader] reacts to absent key files.
type Mode int

const (
	// ModeStrict fails when either key file is absent.
	ModeStrict Mode = iota
	// ModeEphemeralTest generates an in-memory keypair when both files are absent.
	ModeEphemeralTest
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeEphemeralTest:
		return "ephemeral-test"
	default:
		return "unknown"
	}
}

// Keypair is an immutable RSA signing keypair.
type Keypair struct {
	private   *rsa.PrivateKey
	public    *rsa.PublicKey
	ephemeral bool
}

// NewKeypair wraps an existing private key.
func NewKeypair(priv *rsa.PrivateKey) (*Keypair, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: nil private key", ErrKeysUnreadable)
	}
	if priv.N.BitLen() < minRSABits {
		return nil, fmt.Errorf("%w: RSA key must be at least %d bits", ErrKeysUnreadable, minRSABits)
	}
	return &Keypair{private: priv, public: &priv.PublicKey}, nil
}

// Generate creates a fresh in-memory keypair. bits <= 0 selects [DefaultRSABits].
func Generate(bits int) (*Keypair, error) {
	if bits <= 0 {
		bits = DefaultRSABits
	}
	if bits < minRSABits {
		return nil, fmt.Errorf("keys: RSA key size must be at least %d bits", minRSABits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate RSA key: %w", err)
	}
	return &Keypair{private: priv, public: &priv.PublicKey}, nil
}

// PrivateKey returns the signing key. It is meant for in-process signing only.
func (k *Keypair) PrivateKey() *rsa.PrivateKey { return k.private }

// PublicKey returns the verification key.
func (k *Keypair) PublicKey() *rsa.PublicKey { return k.public }

// Ephemeral reports whether the keypair was generated in memory by [ModeEphemeralTest].
func (k *Keypair) Ephemeral() bool { return k.ephemeral }

// Bits returns the modulus size of the keypair.
func (k *Keypair) Bits() int { return k.public.N.BitLen() }

// PublicKeyPEM encodes the public key as a PKIX "PUBLIC KEY" PEM block.
func (k *Keypair) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.public)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Loader reads a keypair from disk according to its [Mode].
type Loader struct {
	mode   Mode
	bits   int
	logger *slog.Logger
}

// NewLoader returns a loader fixed to mode. A nil logger uses slog.Default().
func NewLoader(mode Mode, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{mode: mode, bits: DefaultRSABits, logger: logger}
}

// WithRSABits sets the size of keypairs generated in [ModeEphemeralTest].
func (l *Loader) WithRSABits(bits int) *Loader {
	if bits > 0 {
		l.bits = bits
	}
	return l
}

// Mode returns the loader mode.
func (l *Loader) Mode() Mode { return l.mode }

// Load reads the private and public PEM files. It never writes to disk.
func (l *Loader) Load(privatePath, publicPath string) (*Keypair, error) {
	privExists, err := fileExists(privatePath)
	if err != nil {
		l.logger.Error("signing key stat failed", "path", privatePath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}
	pubExists, err := fileExists(publicPath)
	if err != nil {
		l.logger.Error("signing key stat failed", "path", publicPath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}

	if !privExists && !pubExists && l.mode == ModeEphemeralTest {
		l.logger.Warn("INSECURE: signing keys missing, generating ephemeral test keypair; tokens will not survive restart",
			"private_key_path", privatePath,
			"public_key_path", publicPath,
			"bits", l.bits,
		)
		kp, err := Generate(l.bits)
		if err != nil {
			return nil, err
		}
		kp.ephemeral = true
		return kp, nil
	}

	if !privExists || !pubExists {
		var missing []string
		if !privExists {
			missing = append(missing, "private key at "+privatePath)
		}
		if !pubExists {
			missing = append(missing, "public key at "+publicPath)
		}
		l.logger.Error("signing keys missing; keys must be provisioned before start", "missing", missing)
		return nil, fmt.Errorf("%w: %v", ErrKeysMissing, missing)
	}

	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		l.logger.Error("signing key read failed", "path", privatePath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}
	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		l.logger.Error("signing key read failed", "path", publicPath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}

	priv, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("%w: public key does not match private key", ErrKeysUnreadable)
	}

	kp, err := NewKeypair(priv)
	if err != nil {
		return nil, err
	}

	l.logger.Info("signing keys loaded", "private_key_path", privatePath, "public_key_path", publicPath, "bits", kp.Bits())
	return kp, nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", path)
	}
	return true, nil
}

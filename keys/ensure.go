package keys

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureResult reports what [Ensure] did on disk.
type EnsureResult struct {
	GeneratedPrivate bool
	WrotePublic      bool
}

// Ensure provisions a keypair at the given paths. Existing files are left untouched;
// a missing public key is derived from an existing private key.
func Ensure(privatePath, publicPath string, bits int) (EnsureResult, error) {
	var res EnsureResult

	if bits <= 0 {
		bits = DefaultRSABits
	}
	if bits < minRSABits {
		return res, fmt.Errorf("keys: RSA key size must be at least %d bits", minRSABits)
	}

	privExists, err := fileExists(privatePath)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}
	pubExists, err := fileExists(publicPath)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}

	if !privExists {
		if pubExists {
			return res, fmt.Errorf("keys: public key %s exists without private key %s; refusing to overwrite", publicPath, privatePath)
		}
		kp, err := Generate(bits)
		if err != nil {
			return res, err
		}
		privPEM, err := encodePrivateKeyPEM(kp.PrivateKey())
		if err != nil {
			return res, err
		}
		if err := writeFile(privatePath, privPEM, 0o600); err != nil {
			return res, err
		}
		res.GeneratedPrivate = true
	}

	if !pubExists {
		if err := DerivePublic(privatePath, publicPath); err != nil {
			return res, err
		}
		res.WrotePublic = true
	}

	return res, nil
}

// DerivePublic reads the private key at privatePath and writes its PKIX public key
// to publicPath, replacing any existing file.
func DerivePublic(privatePath, publicPath string) error {
	data, err := os.ReadFile(privatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: private key at %s", ErrKeysMissing, privatePath)
		}
		return fmt.Errorf("%w: %v", ErrKeysUnreadable, err)
	}
	priv, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return err
	}
	kp, err := NewKeypair(priv)
	if err != nil {
		return err
	}
	pubPEM, err := kp.PublicKeyPEM()
	if err != nil {
		return err
	}
	return writeFile(publicPath, pubPEM, 0o644)
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("keys: create %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("keys: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("keys: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("keys: rename %s: %w", path, err)
	}
	return nil
}

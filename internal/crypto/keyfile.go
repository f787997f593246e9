package crypto

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKeyFileName is the default name for the encryption key file.
const DefaultKeyFileName = ".drivesync-token-key"

// ResolveKey determines the token encryption key. Priority: the explicit
// key, then the key file, then a newly generated key saved to the file.
func ResolveKey(explicitKey, keyFilePath string) (string, error) {
	if explicitKey != "" {
		return explicitKey, nil
	}

	if keyFilePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		keyFilePath = filepath.Join(homeDir, DefaultKeyFileName)
	}

	if data, err := os.ReadFile(keyFilePath); err == nil {
		return string(data), nil
	}

	newKey, err := GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate encryption key: %w", err)
	}

	if err := os.WriteFile(keyFilePath, []byte(newKey), 0600); err != nil {
		return "", fmt.Errorf("failed to save encryption key to %s: %w", keyFilePath, err)
	}

	return newKey, nil
}

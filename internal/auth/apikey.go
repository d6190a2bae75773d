// Package auth finds and validates the Gemini API key and verifies the
// bearer tokens presented to the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// APIKeyEnvVar holds the Gemini API key.
const APIKeyEnvVar = "GEMINI_API_KEY"

const (
	credentialDir  = ".moodmatch"
	credentialFile = "gemini-key.gpg"
)

// decrypt runs gpg. Tests replace it.
var decrypt = func(args ...string) ([]byte, error) {
	return exec.Command("gpg", args...).Output()
}

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. GPG-encrypted file at ~/.moodmatch/gemini-key.gpg
//
// The Lambda binary does not call this; it reads the key from SSM instead.
func GetAPIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnvVar)); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Error().Err(err).Msg("Failed to retrieve API key")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: "API key not found. Set " + APIKeyEnvVar + " or store it in ~/" + credentialDir + "/" + credentialFile,
		Err:     err,
	}
}

func getFromGPG() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	credPath := filepath.Join(home, credentialDir, credentialFile)
	if _, err := os.Stat(credPath); err != nil {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	args := []string{"--decrypt", "--quiet"}

	// Passphrase file must be owner-only.
	passphrasePath := filepath.Join(home, credentialDir, "passphrase")
	if fi, err := os.Stat(passphrasePath); err == nil {
		if mode := fi.Mode().Perm(); mode&0o077 != 0 {
			log.Warn().
				Str("passphrase_file", passphrasePath).
				Str("permissions", fmt.Sprintf("%04o", mode)).
				Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		} else {
			args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
		}
	}
	args = append(args, credPath)

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")
	output, err := decrypt(args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/auth"
)

// ResolveDirectory checks that the path exists and is a directory, then
// returns the absolute path.
func ResolveDirectory(dirPath string) (string, error) {
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", &os.PathError{Op: "stat", Path: dirPath, Err: errors.New("not a directory")}
	}

	absPath, err := filepath.Abs(dirPath)
	if err == nil {
		dirPath = absPath
	}
	return dirPath, nil
}

// captionSetupHint says what to fix when the caption service can't start.
func captionSetupHint(err error, model string) string {
	var verr *auth.ValidationError
	if !errors.As(err, &verr) {
		return "Couldn't reach Gemini for captions"
	}
	switch verr.Type {
	case auth.ErrTypeNoKey:
		return "Captions need a Gemini key: set " + auth.APIKeyEnvVar + " or store it in ~/.moodmatch/gemini-key.gpg"
	case auth.ErrTypeInvalidKey:
		return "Gemini rejected the key in " + auth.APIKeyEnvVar
	case auth.ErrTypeQuotaExceeded:
		return "Gemini quota is used up; captions are unavailable until it resets"
	case auth.ErrTypeNetworkError:
		return "Gemini is unreachable; check the network and try again"
	default:
		return fmt.Sprintf("Gemini couldn't run model %q; check GEMINI_MODEL", model)
	}
}

// exitCaptionSetup logs the hint and exits.
func exitCaptionSetup(err error, model string) {
	log.Fatal().Err(err).Str("model", model).Msg(captionSetupHint(err, model))
}

package auth

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/fpang/moodmatch/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Generator is the subset of *genai.Models used to probe the key.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ValidateAPIKey verifies that the API key is valid by making a minimal API
// call against model. It returns nil if the key is valid, or a
// ValidationError whose Type gives the nature of the failure.
func ValidateAPIKey(ctx context.Context, gen Generator, model string) error {
	log.Debug().Str("model", model).Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	var valErr *ValidationError
	switch {
	case err != nil:
		valErr = classifyError(err)
	case resp == nil || len(resp.Candidates) == 0:
		log.Warn().Msg("API key validation returned empty response")
		valErr = &ValidationError{Type: ErrTypeUnknown, Message: "API returned empty response"}
	}

	result := "success"
	if valErr != nil {
		result = valErr.Type.String()
	}
	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Metric("ApiKeyValidationMs", float64(elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Msg("API key validated successfully")
	return nil
}

// messagePatterns classify errors that carry no API status, in order.
var messagePatterns = []struct {
	typ     ValidationErrorType
	message string
	needles []string
}{
	{ErrTypeInvalidKey, "API key is invalid or has been revoked",
		[]string{"api key not valid", "invalid api key", "api_key_invalid", "permission denied"}},
	{ErrTypeQuotaExceeded, "API quota exceeded or rate limited",
		[]string{"quota", "resource exhausted", "rate limit"}},
	{ErrTypeNetworkError, "Network error - check your internet connection",
		[]string{"connection", "network", "timeout", "dial", "no such host", "unreachable"}},
}

// classifyError maps a validation failure to a ValidationError.
func classifyError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	if apiErr, ok := asAPIError(err); ok {
		return classifyAPIError(apiErr, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		log.Error().Err(err).Msg("Network error during API validation")
		return &ValidationError{Type: ErrTypeNetworkError, Message: "Network error - check your internet connection", Err: err}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				log.Error().Err(err).Str("result", p.typ.String()).Msg("API key validation failed")
				return &ValidationError{Type: p.typ, Message: p.message, Err: err}
			}
		}
	}

	log.Error().Err(err).Msg("Unknown error during API validation")
	return &ValidationError{Type: ErrTypeUnknown, Message: "Failed to validate API key", Err: err}
}

// asAPIError finds a genai.APIError whether it was returned by value or
// by pointer.
func asAPIError(err error) (genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val, true
	}
	return genai.APIError{}, false
}

// classifyAPIError categorizes a Gemini API error by HTTP status.
func classifyAPIError(apiErr genai.APIError, err error) *ValidationError {
	v := &ValidationError{Type: ErrTypeUnknown, Message: apiErr.Message, Err: err}
	switch {
	case apiErr.Code == 400:
		v.Type, v.Message = ErrTypeInvalidKey, "Bad request - API key may be malformed"
	case apiErr.Code == 401 || apiErr.Code == 403:
		v.Type, v.Message = ErrTypeInvalidKey, "API key is invalid, expired, or lacks permissions"
	case apiErr.Code == 429:
		v.Type, v.Message = ErrTypeQuotaExceeded, "API rate limit exceeded - try again later"
	case apiErr.Code >= 500:
		v.Type, v.Message = ErrTypeNetworkError, "Gemini API server error - try again later"
	}
	if v.Message == "" {
		v.Message = "Gemini API error"
	}
	log.Error().Int("code", apiErr.Code).Str("result", v.Type.String()).Msg("Gemini API rejected validation request")
	return v
}

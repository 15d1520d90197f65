package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateSettings checks the loaded configuration for values that would
// break the daemon at runtime. Validation errors are collected so the user
// sees all problems at once.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire settings struct.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validateBackendSettings(&settings.Backend, &ve)
	validateOutputSettings(&settings.Output, &ve)

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBackendSettings(backend *BackendSettings, ve *ValidationError) {
	if backend.BaseURL == "" {
		ve.Errors = append(ve.Errors, "backend.baseurl is required")
	} else if u, err := url.Parse(backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Errors = append(ve.Errors, fmt.Sprintf("backend.baseurl %q is not a valid URL", backend.BaseURL))
	}

	if backend.SocketURL != "" {
		u, err := url.Parse(backend.SocketURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			ve.Errors = append(ve.Errors, fmt.Sprintf("backend.socketurl %q must use ws:// or wss://", backend.SocketURL))
		}
	}

	if backend.ReconnectAttempts < 1 {
		ve.Errors = append(ve.Errors, "backend.reconnectattempts must be at least 1")
	}
	if backend.ReconnectDelayMS < 100 {
		ve.Errors = append(ve.Errors, "backend.reconnectdelayms must be at least 100")
	}
}

func validateOutputSettings(output *OutputSettings, ve *ValidationError) {
	if output.Listen != "" {
		if _, _, err := net.SplitHostPort(output.Listen); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("output.listen %q is not a valid host:port", output.Listen))
		}
	}
}

// SocketURL returns the effective websocket endpoint, deriving it from the
// REST base URL when no explicit socket URL is configured.
func (b *BackendSettings) EffectiveSocketURL() string {
	if b.SocketURL != "" {
		return b.SocketURL
	}
	derived := b.BaseURL
	derived = strings.Replace(derived, "https://", "wss://", 1)
	derived = strings.Replace(derived, "http://", "ws://", 1)
	return strings.TrimSuffix(derived, "/") + "/events/socket"
}

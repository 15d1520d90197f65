package soundsettings

import (
	"maps"
	"strconv"
	"strings"
)

// Normalize converts a raw settings payload of arbitrary or partial shape
// into a valid Settings value. It is total: any input, including nil,
// yields usable settings. Missing or malformed fields fall back to
// defaults field by field; valid fields are kept even when siblings are
// broken.
func Normalize(raw map[string]any) Settings {
	s := Settings{
		Enabled:      boolField(raw, "enabled", true),
		EnableSounds: boolField(raw, "enableSounds", true),
		Volume:       volumeField(raw, "volume"),
		DefaultSound: stringField(raw, "defaultSound", DefaultSoundID),
		EventSounds:  make(map[string]string, len(builtinEventSounds)),
	}

	maps.Copy(s.EventSounds, builtinEventSounds)

	if raw != nil {
		if m, ok := raw["eventSounds"].(map[string]any); ok {
			for key, value := range m {
				if asset, ok := coerceString(value); ok {
					s.EventSounds[key] = asset
				}
			}
		}
	}

	return s
}

func boolField(raw map[string]any, key string, fallback bool) bool {
	if raw == nil {
		return fallback
	}
	switch v := raw[key].(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func volumeField(raw map[string]any, key string) float64 {
	if raw == nil {
		return DefaultVolume
	}
	var volume float64
	switch v := raw[key].(type) {
	case float64:
		volume = v
	case int:
		volume = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return DefaultVolume
		}
		volume = parsed
	default:
		return DefaultVolume
	}
	if volume < 0 || volume > 1 {
		return DefaultVolume
	}
	return volume
}

func stringField(raw map[string]any, key, fallback string) string {
	if raw == nil {
		return fallback
	}
	if v, ok := coerceString(raw[key]); ok {
		return v
	}
	return fallback
}

func coerceString(value any) (string, bool) {
	v, ok := value.(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

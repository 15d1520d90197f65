package audio

import (
	"os"
	"path/filepath"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/beyproweb/beypro-notify/internal/errors"
)

// assetInventory is the fixed set of bundled sound identifiers. Each maps
// to a WAV file of the same name in the assets directory.
var assetInventory = map[string]struct{}{
	"new_order":   {},
	"alert":       {},
	"chime":       {},
	"alarm":       {},
	"cash":        {},
	"success":     {},
	"horn":        {},
	"warning":     {},
	"yemeksepeti": {},
}

// Resolver maps sound asset identifiers to locally playable file paths.
// Resolutions are cached read-through and never invalidated within a
// session, assets are immutable bundled files.
type Resolver struct {
	assetsDir string
	cache     *gocache.Cache
}

// NewResolver creates a resolver over the given assets directory.
func NewResolver(assetsDir string) *Resolver {
	return &Resolver{
		assetsDir: assetsDir,
		cache:     gocache.New(gocache.NoExpiration, 0),
	}
}

// CanonicalID normalizes a configured sound value to an inventory
// identifier: lowercased, trimmed, file extension stripped. Backends and
// older app versions configure sounds as file names like "cash.mp3".
func CanonicalID(identifier string) string {
	id := strings.ToLower(strings.TrimSpace(identifier))
	for _, ext := range []string{".mp3", ".wav", ".ogg"} {
		if strings.HasSuffix(id, ext) {
			return strings.TrimSuffix(id, ext)
		}
	}
	return id
}

// Resolve returns the playable file path for an asset identifier.
func (r *Resolver) Resolve(identifier string) (string, error) {
	id := CanonicalID(identifier)
	if id == "" {
		return "", errors.Newf("empty sound identifier").
			Component("audio").
			Category(errors.CategoryAsset).
			Build()
	}
	if _, known := assetInventory[id]; !known {
		return "", errors.Newf("unknown sound asset %q", identifier).
			Component("audio").
			Category(errors.CategoryAsset).
			Context("canonical_id", id).
			Build()
	}

	if cached, found := r.cache.Get(id); found {
		return cached.(string), nil
	}

	path := filepath.Join(r.assetsDir, id+".wav")
	if _, err := os.Stat(path); err != nil {
		return "", errors.New(err).
			Component("audio").
			Category(errors.CategoryAsset).
			Context("path", path).
			Build()
	}

	r.cache.Set(id, path, gocache.NoExpiration)
	return path, nil
}

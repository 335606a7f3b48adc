// Package rendercache implements the daemon's four cache layers: a
// content-addressed on-disk PNG cache, an external-icon cache, an
// in-RAM session cache, and a wallpaper composition cache.
//
// The directory-builder shape (a BaseDir plus a family of *Path methods)
// keeps every layer's path rules in one place.
package rendercache

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
)

// Store owns every cache layer's root directories.
type Store struct {
	CacheRoot string // persistent: content cache, external icons, nav/wp_comp
	StateDir  string // state directory, prefer tmpfs (e.g. /dev/shm/goofydeck); the session cache itself is the in-memory session map

	mu      sync.Mutex
	session map[sessionKey][]byte
}

type sessionKey struct {
	path  string
	mtime int64
	size  int64
}

// NewStore creates a Store. The session cache always starts empty — it
// is wiped at every daemon startup.
func NewStore(cacheRoot, stateDir string) *Store {
	return &Store{
		CacheRoot: cacheRoot,
		StateDir:  stateDir,
		session:   make(map[sessionKey][]byte),
	}
}

// fnv1a32Hex hashes s with 32-bit FNV-1a and returns its hex digest.
// hash/fnv is stdlib: the cache's hash is an implementation detail (any
// stable, fast non-cryptographic hash satisfies the cache's stability
// requirement), and none of the pack's third-party dependencies offer a
// hashing primitive — pulling one in for this alone would add a
// dependency with no other home.
func fnv1a32Hex(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// ContentKey is the identity a content-cache entry is addressed by. The
// hash depends ONLY on (page, button) — never on preset or icon
// content — so changing a preset's styling does not invalidate an
// existing cache entry. This is deliberate, not an oversight.
type ContentKey struct {
	Page   string
	Button int // 1-based
}

func (k ContentKey) hash() string {
	return fnv1a32Hex(fmt.Sprintf("page:%s\nbtn:%d\n", k.Page, k.Button))
}

// ContentPath returns the deterministic on-disk path for a content-cache
// entry, optionally suffixed with a state-variant or "text" tag.
func (s *Store) ContentPath(key ContentKey, variant string) string {
	name := fmt.Sprintf("%d-%s", key.Button, key.hash())
	if variant != "" {
		name += "-" + variant
	}
	return filepath.Join(s.CacheRoot, key.Page, name+".png")
}

// ExternalIconPath returns the disk-normalized cache path for a
// local:/url: icon reference, keyed by the raw spec string.
func (s *Store) ExternalIconPath(spec string) string {
	return filepath.Join(s.CacheRoot, "external_icons", fnv1a32Hex(spec)+".png")
}

// MDIOnceMarkerPath returns the "already attempted" marker path used to
// prevent repeated MDI download attempts for a missing icon.
func (s *Store) MDIOnceMarkerPath(slug string) string {
	return filepath.Join(s.CacheRoot, fmt.Sprintf("mdi_dl_%s.once", fnv1a32Hex(slug)))
}

// WallpaperSig computes wp_sig as
// fnv1a32("path:<p>\nq:<q>\nm:<m>\nd:<0|1>\n").
func WallpaperSig(path string, quality, magnify int, dithering bool) string {
	d := 0
	if dithering {
		d = 1
	}
	return fnv1a32Hex(fmt.Sprintf("path:%s\nq:%d\nm:%d\nd:%d\n", path, quality, magnify, d))
}

// NavTilePath is the persistent composed-wallpaper-plus-nav-icon path.
func (s *Store) NavTilePath(page, navName, wpSig string, pos int) string {
	name := fmt.Sprintf("%s_%s_%d.png", navName, wpSig, pos)
	return filepath.Join(s.CacheRoot, "nav", page, name)
}

// WallpaperCompPath is the persistent wallpaper-tile-plus-base-icon
// composition path.
func (s *Store) WallpaperCompPath(wpSig string, pos int, base string) string {
	name := fmt.Sprintf("%d_%s.png", pos, base)
	return filepath.Join(s.CacheRoot, "wp_comp", wpSig, fmt.Sprintf("%d", pos), name)
}

// EnsureDirs creates every directory the content cache needs for page.
func (s *Store) EnsureDirs(page string) error {
	dirs := []string{
		filepath.Join(s.CacheRoot, page),
		filepath.Join(s.CacheRoot, "external_icons"),
		filepath.Join(s.CacheRoot, "nav", page),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("rendercache: ensure dir %s: %w", d, err)
		}
	}
	return nil
}

// Get returns a session-cached PNG for (path, mtime, size), if present.
func (s *Store) Get(path string, mtime, size int64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.session[sessionKey{path, mtime, size}]
	return b, ok
}

// Put stores data in the session cache keyed by (path, mtime, size).
func (s *Store) Put(path string, mtime, size int64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session[sessionKey{path, mtime, size}] = data
}

// Exists reports whether a content-cache path already exists on disk —
// the gate for "icons are rebuilt only when the file is missing".
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

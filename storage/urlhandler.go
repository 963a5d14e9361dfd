// Package storage maps generated artifact paths to public URLs, ported
// from original_source/src/response/url.rs's UrlHandler.
package storage

import (
	"path/filepath"
	"strings"
)

// UrlHandler joins a configured prefix with generated file names.
type UrlHandler struct {
	prefix string
}

func NewUrlHandler(prefix string) *UrlHandler {
	return &UrlHandler{prefix: strings.TrimRight(prefix, "/")}
}

// GenerateURL returns the public URL for a locally generated file path,
// keeping only its base name.
func (h *UrlHandler) GenerateURL(filePath string) string {
	return h.prefix + "/" + filepath.Base(filePath)
}

// GenerateURLWithPath joins additional path segments after the prefix.
func (h *UrlHandler) GenerateURLWithPath(segments ...string) string {
	parts := append([]string{h.prefix}, segments...)
	return strings.Join(parts, "/")
}

// ExtractFilename returns the part of url after this handler's prefix
// (which keeps any sub-path segments), or the final path segment of a
// URL outside the prefix.
func (h *UrlHandler) ExtractFilename(url string) string {
	if rest, ok := strings.CutPrefix(url, h.prefix+"/"); ok {
		return rest
	}
	idx := strings.LastIndex(url, "/")
	if idx == -1 {
		return url
	}
	return url[idx+1:]
}

// IsLocalURL reports whether url was produced by this handler's prefix.
func (h *UrlHandler) IsLocalURL(url string) bool {
	return strings.HasPrefix(url, h.prefix)
}

func (h *UrlHandler) Prefix() string { return h.prefix }

func (h *UrlHandler) SetPrefix(prefix string) { h.prefix = strings.TrimRight(prefix, "/") }

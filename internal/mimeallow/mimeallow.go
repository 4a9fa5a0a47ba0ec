// Package mimeallow is the allow-list gate for the in-process multipart
// upload path. It applies only to POST /files/upload; the presign
// flow records the declared content-type without verifying it.
package mimeallow

import "strings"

// allowedPrefixes covers the broad image, audio, video, text, and font
// categories wholesale.
var allowedPrefixes = []string{
	"image/",
	"audio/",
	"video/",
	"text/",
	"font/",
}

// allowedExact covers MIME types that don't fit a broad prefix but belong
// to the named categories (documents, archives) plus the generic fallback.
var allowedExact = map[string]bool{
	"application/octet-stream": true,
	"application/pdf":          true,
	"application/msword":       true,
	"application/vnd.ms-excel": true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":        true,
	"application/vnd.oasis.opendocument.spreadsheet": true,
	"application/zip":              true,
	"application/x-7z-compressed":  true,
	"application/x-tar":            true,
	"application/gzip":             true,
	"application/x-rar-compressed": true,
	"application/json":             true,
	"application/xml":              true,
	"font/ttf":                     true,
	"font/otf":                     true,
	"font/woff":                    true,
	"font/woff2":                   true,
}

// Allowed reports whether mimeType (already lower-cased by the caller's
// sniffing step) may pass the multipart upload gate.
func Allowed(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if allowedExact[mimeType] {
		return true
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

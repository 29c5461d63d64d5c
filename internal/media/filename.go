package media

import (
	"strings"
	"time"
)

const maxSlugLen = 50

// SanitizeSlug normalizes a descriptive name into a filename-safe slug:
// lowercase, disallowed runes become hyphens, repeated hyphens collapse,
// leading/trailing hyphens are stripped, and the result is capped at 50
// characters. The transform is idempotent.
func SanitizeSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	lastHyphen := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}

// ExtensionFromMIME derives a file extension from the MIME subtype,
// falling back to "bin" for anything unrecognizable.
func ExtensionFromMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	_, subtype, found := strings.Cut(mime, "/")
	if !found || subtype == "" {
		return "bin"
	}
	switch subtype {
	case "jpeg":
		return "jpg"
	case "mpeg":
		return "mp3"
	case "plain":
		return "txt"
	case "quicktime":
		return "mov"
	}
	for _, r := range subtype {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "bin"
		}
	}
	if len(subtype) > 5 {
		return "bin"
	}
	return subtype
}

// ComposeFileName builds the stored filename: {slug}_{YYYY-MM-DD}_{HH-MM-SS}.{ext}.
func ComposeFileName(slug string, at time.Time, mime string) string {
	if slug == "" {
		slug = "file"
	}
	return slug + "_" + at.Format("2006-01-02") + "_" + at.Format("15-04-05") + "." + ExtensionFromMIME(mime)
}

// KindFolder maps a media type to its per-user storage folder.
func KindFolder(mediaType string) string {
	switch mediaType {
	case TypeImage:
		return "images"
	case TypeAudio:
		return "audio"
	case TypeVideo:
		return "videos"
	case TypeDocument:
		return "documents"
	default:
		return "other"
	}
}

// StorageKey composes the per-user, per-kind namespaced key for a file.
func StorageKey(userPhone, mediaType, fileName string) string {
	owner := SanitizeSlug(userPhone)
	if owner == "" {
		owner = "unknown"
	}
	return owner + "/" + KindFolder(mediaType) + "/" + fileName
}

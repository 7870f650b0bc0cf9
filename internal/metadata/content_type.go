package metadata

import (
	"mime"
	"path/filepath"
	"strings"
)

// Aliases browsers and sniffers use for the three accepted audio types
var contentTypeAliases = map[string]string{
	"audio/mpeg":     "audio/mpeg",
	"audio/mp3":      "audio/mpeg",
	"audio/mpeg3":    "audio/mpeg",
	"audio/x-mpeg":   "audio/mpeg",
	"audio/x-mp3":    "audio/mpeg",
	"audio/x-mpeg-3": "audio/mpeg",
	"audio/wav":      "audio/wav",
	"audio/x-wav":    "audio/wav",
	"audio/wave":     "audio/wav",
	"audio/vnd.wave": "audio/wav",
	"audio/flac":     "audio/flac",
	"audio/x-flac":   "audio/flac",
}

// NormalizeContentType lowercases a MIME type, drops its parameters and maps
// known aliases onto their canonical form.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if canonical, ok := contentTypeAliases[mediaType]; ok {
		return canonical
	}
	return mediaType
}

// ContentTypeForExt returns the MIME type for an audio file extension
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav", ".wave":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// ContentTypeForFile returns the MIME type for a stored filename
func ContentTypeForFile(filename string) string {
	return ContentTypeForExt(filepath.Ext(filename))
}

// ExtensionForContentType returns the file extension used when storing an
// upload of the given type, or "" for unknown types.
func ExtensionForContentType(contentType string) string {
	switch NormalizeContentType(contentType) {
	case "audio/mpeg":
		return ".mp3"
	case "audio/flac":
		return ".flac"
	case "audio/wav":
		return ".wav"
	default:
		return ""
	}
}

// IsAudioFile checks if a path has a supported audio extension
func IsAudioFile(path string) bool {
	return ContentTypeForExt(filepath.Ext(path)) != "application/octet-stream"
}

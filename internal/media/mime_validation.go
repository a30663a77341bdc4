package media

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
)

var extensionsByMime = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/heic": "heic",
}

const allowedMimeDescription = "JPEG, PNG, WebP or HEIC images"

func normalizeMimeType(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", fmt.Errorf("content type required")
	}
	mediaType, _, err := mime.ParseMediaType(clean)
	if err != nil {
		return "", fmt.Errorf("content type invalid: %w", err)
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "image/jpg" {
		mediaType = "image/jpeg"
	}
	return mediaType, nil
}

func extensionFor(mimeType string) (string, bool) {
	ext, ok := extensionsByMime[mimeType]
	return ext, ok
}

// contentMatches sniffs the leading bytes. HEIC is not recognised by the
// sniffer and is accepted when the container brand says so.
func contentMatches(declared string, head []byte) bool {
	if declared == "image/heic" {
		return isHEIC(head)
	}
	return http.DetectContentType(head) == declared
}

func isHEIC(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	switch string(head[8:12]) {
	case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}

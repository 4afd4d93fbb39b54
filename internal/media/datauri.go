package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrInvalidImage  = errors.New("image must be a base64 data URI of a png, jpeg, gif or webp image")
	ErrImageTooLarge = errors.New("image exceeds the maximum size")
)

var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Image is a decoded, content-sniffed chat attachment.
type Image struct {
	MIMEType  string
	Extension string
	Data      []byte
}

// DecodeDataURI parses data:image/<subtype>;base64,<payload>. The declared
// type is not trusted: the decoded bytes must sniff as an allowed image type.
func DecodeDataURI(uri string, maxBytes int) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return Image{}, ErrInvalidImage
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return Image{}, ErrInvalidImage
	}

	params := strings.Split(header, ";")
	declared := strings.ToLower(strings.TrimSpace(params[0]))
	if !strings.HasPrefix(declared, "image/") || !hasParam(params[1:], "base64") {
		return Image{}, ErrInvalidImage
	}

	// reject before allocating the decoded buffer
	if base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return Image{}, fmt.Errorf("%w of %d bytes", ErrImageTooLarge, maxBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, ErrInvalidImage
	}
	if len(data) > maxBytes {
		return Image{}, fmt.Errorf("%w of %d bytes", ErrImageTooLarge, maxBytes)
	}

	detected := mimetype.Detect(data).String()
	ext, allowed := allowedImageTypes[detected]
	if !allowed {
		return Image{}, ErrInvalidImage
	}
	return Image{MIMEType: detected, Extension: ext, Data: data}, nil
}

func hasParam(params []string, want string) bool {
	for _, p := range params {
		if strings.EqualFold(strings.TrimSpace(p), want) {
			return true
		}
	}
	return false
}

// IsDataURI reports whether s looks like an inline data URI rather than a
// stored image reference.
func IsDataURI(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "data:")
}

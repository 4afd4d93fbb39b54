package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func TestDecodeDataURI_ValidPNG(t *testing.T) {
	raw := pngBytes(t)

	img, err := DecodeDataURI(dataURI("image/png", raw), 5<<20)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, ".png", img.Extension)
	assert.Equal(t, raw, img.Data)
}

func TestDecodeDataURI_SniffedTypeWins(t *testing.T) {
	img, err := DecodeDataURI(dataURI("image/jpeg", pngBytes(t)), 5<<20)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
}

func TestDecodeDataURI_Rejections(t *testing.T) {
	raw := pngBytes(t)
	tests := []struct {
		name string
		uri  string
		max  int
		err  error
	}{
		{"not a data uri", "https://example.com/a.png", 5 << 20, ErrInvalidImage},
		{"missing payload", "data:image/png;base64,", 5 << 20, ErrInvalidImage},
		{"not base64 encoded", "data:image/png," + string(raw), 5 << 20, ErrInvalidImage},
		{"declared non image", dataURI("text/plain", raw), 5 << 20, ErrInvalidImage},
		{"corrupt base64", "data:image/png;base64,!!!!", 5 << 20, ErrInvalidImage},
		{"bytes are not an image", dataURI("image/png", []byte("plain text pretending")), 5 << 20, ErrInvalidImage},
		{"svg is refused", dataURI("image/svg+xml", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`)), 5 << 20, ErrInvalidImage},
		{"too large", dataURI("image/png", raw), len(raw) - 1, ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDataURI(tt.uri, tt.max)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeDataURI_OversizedPayloadRejectedEarly(t *testing.T) {
	big := bytes.Repeat([]byte{0}, 6<<20)

	_, err := DecodeDataURI(dataURI("image/png", big), 5<<20)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

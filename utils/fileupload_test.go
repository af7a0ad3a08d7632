package utils

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngMagic  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegMagic = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

// createTestFileHeader creates a multipart.FileHeader for testing
func createTestFileHeader(t *testing.T, filename string, size int64, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", "application/octet-stream")
	part, err := writer.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content)) + 1024)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	require.Len(t, form.File["image"], 1)
	fileHeader := form.File["image"][0]
	// Override size for testing purposes
	fileHeader.Size = size
	return fileHeader
}

func TestValidateImageFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		content  []byte
		wantCode string
	}{
		{"png", "empanada.png", int64(len(pngMagic)), pngMagic, ""},
		{"uppercase png", "EMPANADA.PNG", int64(len(pngMagic)), pngMagic, ""},
		{"jpg", "cafe.jpg", int64(len(jpegMagic)), jpegMagic, ""},
		{"jpeg", "cafe.jpeg", int64(len(jpegMagic)), jpegMagic, ""},
		{"exactly max size", "big.png", MaxFileSize, pngMagic, ""},
		{"too large", "big.png", MaxFileSize + 1, pngMagic, "FILE_TOO_LARGE"},
		{"gif extension", "anim.gif", 10, []byte("GIF89a"), "INVALID_FILE_FORMAT"},
		{"no extension", "image", int64(len(pngMagic)), pngMagic, "INVALID_FILE_FORMAT"},
		{"text renamed to png", "notes.png", 10, []byte("just some text"), "INVALID_FILE_FORMAT"},
		{"jpeg named png", "photo.png", int64(len(jpegMagic)), jpegMagic, "INVALID_FILE_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImageFile(createTestFileHeader(t, tt.filename, tt.size, tt.content))
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			uploadErr, ok := err.(*FileUploadError)
			require.True(t, ok, "expected *FileUploadError, got %T", err)
			assert.Equal(t, tt.wantCode, uploadErr.Code)
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("a.png"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("a.JPG"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("a.jpeg"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.webp"))
}

func TestFileUploadError(t *testing.T) {
	err := &FileUploadError{Code: "FILE_TOO_LARGE", Message: "too big"}
	assert.Equal(t, "too big", err.Error())
}

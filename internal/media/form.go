package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const maxImageSizeBytes = 10 << 20

var (
	ErrNoFile       = errors.New("file is missing")
	ErrFileTooLarge = errors.New("file is too large")
	ErrNotAnImage   = errors.New("file must be an image")
)

// ImageSourceFromForm reads the named multipart file field and converts it
// to a data URI accepted by the Cloudinary upload API.
func ImageSourceFromForm(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", ErrNoFile
		}
		return "", fmt.Errorf("read form file %q: %w", field, err)
	}
	defer file.Close()

	return imageSource(file, header)
}

func imageSource(file multipart.File, header *multipart.FileHeader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxImageSizeBytes+1))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoFile
	}
	if len(data) > maxImageSizeBytes {
		return "", ErrFileTooLarge
	}

	contentType := strings.TrimSpace(header.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", ErrNotAnImage
	}

	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}

package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Uploader is the slice of the Cloudinary client the account service
// depends on.
type Uploader interface {
	UploadImage(ctx context.Context, imageSource string) (string, error)
	DestroyImage(ctx context.Context, secureURL string) error
}

type Cloudinary struct {
	apiKey     string
	apiSecret  string
	uploadURL  string
	destroyURL string
	httpClient *http.Client
}

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	Result    string `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewCloudinary(rawURL string) (*Cloudinary, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse cloudinary url: %w", err)
	}

	if parsed.Scheme != "cloudinary" {
		return nil, fmt.Errorf("invalid cloudinary scheme")
	}

	apiKey := parsed.User.Username()
	apiSecret, ok := parsed.User.Password()
	if !ok {
		return nil, fmt.Errorf("missing cloudinary api secret")
	}
	cloudName := parsed.Hostname()
	if apiKey == "" || apiSecret == "" || cloudName == "" {
		return nil, fmt.Errorf("invalid cloudinary credentials")
	}

	return &Cloudinary{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		uploadURL:  fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cloudName),
		destroyURL: fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/destroy", cloudName),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}, nil
}

// UploadImage sends the image (a data URI or remote URL) to Cloudinary and
// returns the delivery URL.
func (c *Cloudinary) UploadImage(ctx context.Context, imageSource string) (string, error) {
	imageSource = strings.TrimSpace(imageSource)
	if imageSource == "" {
		return "", fmt.Errorf("empty image source")
	}

	signed := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	parsed, err := c.post(ctx, c.uploadURL, map[string]string{"file": imageSource}, signed)
	if err != nil {
		return "", err
	}
	if parsed.SecureURL == "" {
		return "", fmt.Errorf("cloudinary response missing secure_url")
	}

	return parsed.SecureURL, nil
}

// DestroyImage removes a previously uploaded asset given its delivery URL.
// Callers treat destroys as best-effort; a missing asset is reported by
// Cloudinary as result "not found" and ignored here.
func (c *Cloudinary) DestroyImage(ctx context.Context, secureURL string) error {
	publicID, err := publicIDFromURL(secureURL)
	if err != nil {
		return err
	}

	signed := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}

	if _, err := c.post(ctx, c.destroyURL, nil, signed); err != nil {
		return err
	}

	return nil
}

// post performs a signed multipart call. Only signed params take part in
// the API signature; the file payload does not.
func (c *Cloudinary) post(ctx context.Context, endpoint string, unsigned, signed map[string]string) (cloudinaryResponse, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		for key, value := range unsigned {
			if err := writer.WriteField(key, value); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", key, err))
				return
			}
		}
		for key, value := range signed {
			if err := writer.WriteField(key, value); err != nil {
				_ = pw.CloseWithError(fmt.Errorf("write %s field: %w", key, err))
				return
			}
		}
		if err := writer.WriteField("api_key", c.apiKey); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("write api_key field: %w", err))
			return
		}
		if err := writer.WriteField("signature", c.sign(signed)); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("write signature field: %w", err))
			return
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(fmt.Errorf("close multipart writer: %w", err))
			return
		}
		_ = pw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("build cloudinary request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("cloudinary request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return cloudinaryResponse{}, fmt.Errorf("read cloudinary response: %w", err)
	}

	var parsed cloudinaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return cloudinaryResponse{}, fmt.Errorf("decode cloudinary response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return cloudinaryResponse{}, fmt.Errorf("cloudinary call failed: %s", parsed.Error.Message)
		}
		return cloudinaryResponse{}, fmt.Errorf("cloudinary call failed with status %d", resp.StatusCode)
	}

	return parsed, nil
}

// sign serializes the signed params as sorted key=value pairs joined by
// '&', appends the API secret and hashes with SHA-1 as the API requires.
func (c *Cloudinary) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}

	h := sha1.New() // #nosec G401: cloudinary API signature requires SHA-1.
	_, _ = h.Write([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(h.Sum(nil))
}

// publicIDFromURL extracts the public id from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1700000000/folder/abc.png
// (-> "folder/abc").
func publicIDFromURL(secureURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(secureURL))
	if err != nil {
		return "", fmt.Errorf("parse cloudinary delivery url: %w", err)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	uploadIdx := -1
	for idx, segment := range segments {
		if segment == "upload" {
			uploadIdx = idx
			break
		}
	}
	if uploadIdx < 0 || uploadIdx == len(segments)-1 {
		return "", fmt.Errorf("unrecognized cloudinary delivery url")
	}

	rest := segments[uploadIdx+1:]
	if len(rest) > 1 && strings.HasPrefix(rest[0], "v") {
		if _, err := strconv.ParseInt(rest[0][1:], 10, 64); err == nil {
			rest = rest[1:]
		}
	}

	publicID := strings.Join(rest, "/")
	publicID = strings.TrimSuffix(publicID, path.Ext(publicID))
	if publicID == "" {
		return "", fmt.Errorf("unrecognized cloudinary delivery url")
	}

	return publicID, nil
}

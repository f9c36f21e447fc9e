// Package media copies card images out of expiring CDN URLs into object storage.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"stash/internal/storage"
)

const maxImageBytes = 20 << 20

// Persister downloads images and stores them under the card's prefix. Stored objects
// are served back through /api/media/:id/*path.
type Persister struct {
	Client *http.Client
	Store  storage.Store
}

func New(store storage.Store, timeout time.Duration) *Persister {
	return &Persister{
		Store: store,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// PersistImages stores every URL it can and returns the list in the same order, with
// the stored path in place of each URL that was copied. The bool reports whether all
// of them were.
func (p *Persister) PersistImages(ctx context.Context, cardID string, urls []string) ([]string, bool) {
	out := make([]string, len(urls))
	all := len(urls) > 0
	for i, raw := range urls {
		stored, err := p.persist(ctx, cardID, raw)
		if err != nil {
			out[i] = raw
			all = false
			continue
		}
		out[i] = stored
	}
	return out, all
}

// PersistScreenshot stores a captured image and returns its API path. The name and
// content type follow the encoded bytes, not the caller.
func (p *Persister) PersistScreenshot(ctx context.Context, cardID string, img []byte) (string, error) {
	if len(img) == 0 {
		return "", errors.New("empty screenshot")
	}
	contentType := http.DetectContentType(img)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/png"
	}
	name := fmt.Sprintf("screenshot-%d%s", time.Now().UnixNano(), extensionFor(contentType))
	objectPath := path.Join(storage.CardPrefix(cardID), "media", name)
	if err := p.Store.PutBytes(ctx, objectPath, img, contentType); err != nil {
		return "", err
	}
	return APIPath(cardID, name), nil
}

func APIPath(cardID, name string) string {
	return fmt.Sprintf("/api/media/%s/%s", cardID, name)
}

// ObjectPath maps the trailing part of an API path back to its object key.
func ObjectPath(cardID, name string) string {
	return path.Join(storage.CardPrefix(cardID), "media", path.Clean("/" + name)[1:])
}

func (p *Persister) persist(ctx context.Context, cardID, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("not a remote url: %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; StashBot/1.0)")

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bad status: %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("not an image: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", err
	}

	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 5 {
		ext = extensionFor(contentType)
	}
	hash := sha1.Sum([]byte(rawURL))
	name := hex.EncodeToString(hash[:]) + ext

	objectPath := path.Join(storage.CardPrefix(cardID), "media", name)
	if err := p.Store.PutBytes(ctx, objectPath, body, storage.GuessContentType(name, contentType)); err != nil {
		return "", err
	}
	return APIPath(cardID, name), nil
}

var mimeExtMap = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/avif": ".avif",
	"image/heic": ".heic",
}

func extensionFor(contentType string) string {
	if i := strings.Index(contentType, ";"); i > -1 {
		contentType = contentType[:i]
	}
	if ext, ok := mimeExtMap[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return ext
	}
	return ".jpg"
}

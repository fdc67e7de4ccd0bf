// Package images downloads representative plant photos into a
// static-serving location. Downloads are best effort: a failure never blocks
// record creation, it only means the sensor has no picture.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"plantbook/internal/plant"
)

const downloadTimeout = 10 * time.Second

// wwwPrefix matches everything up to and including the last "www/" segment,
// which is what Home Assistant serves under /local/.
var wwwPrefix = regexp.MustCompile(`^.*www/`)

// Fetcher downloads images over HTTP with a bounded timeout.
type Fetcher struct {
	http   *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher with the default timeout.
func NewFetcher(logger *zap.Logger) *Fetcher {
	return &Fetcher{
		http:   &http.Client{Timeout: downloadTimeout},
		logger: logger.Named("images"),
	}
}

// Download fetches srcURL into dest. If dest already exists the download is
// skipped and the existing path returned; an existing image is never
// overwritten. Any network failure or non-success status is an error the
// caller should treat as non-fatal.
func (f *Fetcher) Download(ctx context.Context, srcURL, dest string) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		f.logger.Warn("File already exists, will not download again",
			zap.String("path", dest))
		return dest, nil
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image request: %w", err)
	}

	f.logger.Debug("Requesting image", zap.String("url", srcURL))
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read image body: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	f.logger.Debug("Image downloaded",
		zap.String("url", srcURL),
		zap.String("path", dest),
		zap.Int("bytes", len(data)))
	return dest, nil
}

// Filename derives a filesystem-safe name from the image URL: the path
// basename, percent-decoded, slugified with space separators, with the
// jpg/png extension restored. Names that come out unusable fall back to a
// deterministic name derived from the device id.
func Filename(imageURL, deviceID string) string {
	base := ""
	if u, err := url.Parse(imageURL); err == nil {
		base = path.Base(u.Path)
	} else {
		base = path.Base(imageURL)
	}
	if decoded, err := url.PathUnescape(base); err == nil {
		base = decoded
	}

	name := plant.SlugifyWithSeparator(base, " ")
	name = strings.ReplaceAll(name, " jpg", ".jpg")
	name = strings.ReplaceAll(name, " png", ".png")

	if !validFilename(name) {
		return fmt.Sprintf("plant_%s.jpg", deviceID)
	}
	return name
}

// validFilename rejects names with no usable stem or with path meaning.
func validFilename(name string) bool {
	stem := strings.TrimSuffix(strings.TrimSuffix(name, ".jpg"), ".png")
	if strings.TrimSpace(stem) == "" {
		return false
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}

// LocalURL converts a downloaded file path under a www/ root into the
// /local/ URL Home Assistant serves it at. Paths outside a www/ root have no
// web-accessible form and yield "".
func LocalURL(downloadedPath string) string {
	if !strings.Contains(downloadedPath, "www/") {
		return ""
	}
	return wwwPrefix.ReplaceAllString(downloadedPath, "/local/")
}

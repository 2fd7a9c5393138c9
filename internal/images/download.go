// Package images fetches item photos so they can be sent inline to vision
// models.
package images

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDownloadTimeout is the default timeout for a single image fetch
	DefaultDownloadTimeout = 20 * time.Second
	// DefaultMaxImageSize is the default maximum image size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
	// defaultMIMEType is assumed when the server sends no content type
	defaultMIMEType = "image/jpeg"
)

// Image is a downloaded photo.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// Base64 returns the image data in standard base64 encoding.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the image as a data: URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.Base64())
}

// Downloader provides image downloading with configurable limits.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
}

// NewDownloader creates a new Downloader with default settings.
func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: DefaultDownloadTimeout,
		},
		timeout: DefaultDownloadTimeout,
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (d *Downloader) WithTimeout(timeout time.Duration) *Downloader {
	d.timeout = timeout
	d.client.Timeout = timeout
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *Downloader) WithMaxSize(maxSize int64) *Downloader {
	d.maxSize = maxSize
	return d
}

// Download fetches a single image. Redirects are followed. A response without
// an image content type is accepted only if its bytes sniff as an image,
// which covers object stores that serve photos as octet-stream.
func (d *Downloader) Download(ctx context.Context, imageURL string) (*Image, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", stripURL(err))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if resp.ContentLength > d.maxSize {
		return nil, fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", resp.ContentLength, d.maxSize)
	}

	// LimitReader enforces the limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, fmt.Errorf("image too large: exceeds limit of %d bytes", d.maxSize)
	}

	mimeType, err := imageMIMEType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}

	return &Image{URL: imageURL, Data: data, MIMEType: mimeType}, nil
}

// DownloadAll fetches the images concurrently and returns them in input
// order. The first failure cancels the remaining downloads.
func (d *Downloader) DownloadAll(ctx context.Context, imageURLs []string) ([]*Image, error) {
	out := make([]*Image, len(imageURLs))
	g, ctx := errgroup.WithContext(ctx)
	for i, u := range imageURLs {
		g.Go(func() error {
			img, err := d.Download(ctx, u)
			if err != nil {
				return fmt.Errorf("image %d: %w", i+1, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(out)).Msg("downloaded images")
	return out, nil
}

// stripURL drops the request URL from transport errors so they can be
// logged. Telegram file URLs contain the bot token.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func imageMIMEType(header string, data []byte) (string, error) {
	if header == "" {
		return defaultMIMEType, nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(header, ";")[0])
	}
	if strings.HasPrefix(mediaType, "image/") {
		return mediaType, nil
	}

	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, nil
	}
	return "", fmt.Errorf("invalid content type: expected image/*, got %s", header)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-harvest/internal/httputil"
)

// pdfMagic starts every PDF file.
var pdfMagic = []byte("%PDF")

// Downloader fetches artifacts over HTTP. The secondary source serves
// PDFs from a delivery endpoint that does not need the browser.
type Downloader struct {
	client    *http.Client
	userAgent string
	policy    httputil.Policy
}

// NewDownloader returns a Downloader using client and userAgent. It makes
// a single attempt per artifact until WithPolicy sets a retry policy.
func NewDownloader(client *http.Client, userAgent string) *Downloader {
	return &Downloader{client: client, userAgent: userAgent}
}

// WithPolicy retries transient download failures under p.
func (d *Downloader) WithPolicy(p httputil.Policy) *Downloader {
	d.policy = p
	return d
}

// Download fetches url into destPath. The body must be a PDF, by content
// type or magic bytes; a bot-verification page yields ErrChallenge and
// anything else ErrNotPDF. Nothing is left at destPath on failure.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	err := d.policy.Do(ctx, func(ctx context.Context) error {
		return d.download(ctx, url, destPath)
	})
	if err != nil {
		return classify(ctx, "download", KindDownload, err)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := d.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("HTTP request: %w", err))
	}
	defer resp.Body.Close()

	br := bufio.NewReader(resp.Body)
	head, _ := br.Peek(4096)

	switch {
	case !bytes.HasPrefix(head, pdfMagic) && IsChallenge(string(head)):
		return fmt.Errorf("%w (HTTP %d)", ErrChallenge, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Transient(fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	case !isPDF(resp.Header.Get("Content-Type"), head):
		return fmt.Errorf("%w: content type %q", ErrNotPDF, resp.Header.Get("Content-Type"))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".harvest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, br)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func isPDF(contentType string, head []byte) bool {
	if bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), pdfMagic) {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.EqualFold(mt, "application/pdf")
}

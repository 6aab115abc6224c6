package runner

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
	"github.com/JakeFAU/realtime-site-auditor/internal/browser"
	"github.com/JakeFAU/realtime-site-auditor/internal/imageproc"
)

// ScrollHeightScript resolves to the full document height in CSS pixels.
const ScrollHeightScript = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`

// navigate waits for the host's rate limit, then loads url.
func (j *Job) navigate(ctx context.Context, page browser.Page, url string, opts browser.NavigateOptions) error {
	if err := j.Limiter.Wait(ctx, url); err != nil {
		return err
	}
	if err := page.Navigate(ctx, url, opts); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func scrollHeight(ctx context.Context, page browser.Page) (int, error) {
	var height float64
	if err := page.Evaluate(ctx, ScrollHeightScript, &height); err != nil {
		return 0, fmt.Errorf("page height: %w", err)
	}
	return int(height), nil
}

// storeArtifact hashes data, writes it under key and describes the upload.
func (j *Job) storeArtifact(ctx context.Context, key, format string, data []byte) (*audit.Capture, error) {
	sum, err := j.Hasher.Hash(data)
	if err != nil {
		return nil, fmt.Errorf("hash artifact: %w", err)
	}
	uri, err := j.Blobs.PutObject(ctx, key, contentType(format), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	return &audit.Capture{
		Path:     key,
		URI:      uri,
		Filename: path.Base(key),
		Format:   format,
		SHA256:   sum,
		Bytes:    len(data),
	}, nil
}

func contentType(format string) string {
	switch format {
	case imageproc.FormatWebP:
		return "image/webp"
	case imageproc.FormatPNG:
		return "image/png"
	case "mp4":
		return "video/mp4"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

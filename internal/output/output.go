// Package output serializes accepted page records to JSON and writes them to
// a local file or a Cloud Storage object.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/sitescrape/internal/crawler"
	"github.com/JakeFAU/sitescrape/internal/storage/gcs"
	"github.com/JakeFAU/sitescrape/internal/storage/local"
)

// DefaultContentType is used when no content type is configured.
const DefaultContentType = "application/json; charset=utf-8"

// Writer persists a page list as one JSON document.
type Writer struct {
	store       crawler.BlobStore
	object      string
	contentType string
}

// New returns a Writer that stores the document at object in store.
func New(store crawler.BlobStore, object, contentType string) *Writer {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Writer{store: store, object: object, contentType: contentType}
}

// Open resolves location into a Writer. gs://bucket/object targets Cloud
// Storage; anything else is treated as a local file path.
func Open(ctx context.Context, location, contentType string) (*Writer, error) {
	if strings.HasPrefix(location, gcs.Scheme) {
		bucket, object, err := gcs.ParseURI(location)
		if err != nil {
			return nil, fmt.Errorf("resolve output: %w", err)
		}
		store, err := gcs.Open(ctx, gcs.Config{Bucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("open output bucket: %w", err)
		}
		return New(store, object, contentType), nil
	}

	abs, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve output: %w", err)
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(abs)})
	if err != nil {
		return nil, fmt.Errorf("open output directory: %w", err)
	}
	return New(store, filepath.Base(abs), contentType), nil
}

// Write encodes pages and stores them, returning the final location.
func (w *Writer) Write(ctx context.Context, pages []crawler.PageRecord) (string, error) {
	data, err := Encode(pages)
	if err != nil {
		return "", err
	}
	location, err := w.store.PutObject(ctx, w.object, w.contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return location, nil
}

// Close releases the underlying store when it holds a client.
func (w *Writer) Close() error {
	if c, ok := w.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}
	return nil
}

// Encode renders pages as a two-space indented JSON array. HTML characters
// are left unescaped and nil lists are written as [].
func Encode(pages []crawler.PageRecord) ([]byte, error) {
	out := make([]crawler.PageRecord, len(pages))
	for i, p := range pages {
		if p.Images == nil {
			p.Images = []string{}
		}
		if p.Files == nil {
			p.Files = []string{}
		}
		out[i] = p
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode pages: %w", err)
	}
	return buf.Bytes(), nil
}

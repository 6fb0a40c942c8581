// Package export turns finished jobs into downloadable CSV artifacts and
// persists them through a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"github.com/mailsift/mailsift/internal/scrape"
	"github.com/mailsift/mailsift/internal/storage"
)

const contentTypeCSV = "text/csv"

// CSVExporter writes one row per (url, email) pair. URLs that yielded no
// addresses still appear, with an empty email column, so the artifact
// accounts for every submitted URL.
type CSVExporter struct {
	blobs storage.BlobStore
}

// NewCSVExporter creates an exporter backed by the given blob store.
func NewCSVExporter(blobs storage.BlobStore) (*CSVExporter, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &CSVExporter{blobs: blobs}, nil
}

// Export encodes the job's results and stores them under jobs/<id>.csv,
// returning the artifact URI.
func (e *CSVExporter) Export(ctx context.Context, job scrape.Job) (string, error) {
	content, err := Encode(job)
	if err != nil {
		return "", err
	}
	path := fmt.Sprintf("jobs/%s.csv", job.ID)
	uri, err := e.blobs.PutObject(ctx, path, contentTypeCSV, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("store export artifact: %w", err)
	}
	return uri, nil
}

// Encode renders the CSV bytes for a job's results.
func Encode(job scrape.Job) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"url", "email"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, result := range job.Results {
		if len(result.Emails) == 0 {
			if err := w.Write([]string{result.URL, ""}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
			continue
		}
		for _, email := range result.Emails {
			if err := w.Write([]string{result.URL, email}); err != nil {
				return nil, fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

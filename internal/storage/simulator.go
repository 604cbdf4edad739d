package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ArchiveSimulator stands in for the S3 client when no bucket is
// configured: uploads succeed and return a deterministic URL so the
// archive job still deletes the exported rows in development.
type ArchiveSimulator struct {
	bucket   string
	endpoint string
}

func NewArchiveSimulator(bucket, endpoint string) *ArchiveSimulator {
	return &ArchiveSimulator{
		bucket:   strings.TrimSpace(bucket),
		endpoint: strings.TrimSpace(endpoint),
	}
}

func (r *ArchiveSimulator) UploadArchive(objectKey string, gzipData []byte) (string, error) {
	if len(gzipData) == 0 {
		return "", fmt.Errorf("empty archive data")
	}

	sum := sha256.Sum256([]byte(objectKey))
	key := hex.EncodeToString(sum[:8])

	ep := r.endpoint
	if ep == "" {
		ep = "https://archive.example.invalid"
	}
	bucket := r.bucket
	if bucket == "" {
		bucket = "modguard"
	}

	return fmt.Sprintf("%s/%s/%s?sim=%s", strings.TrimRight(ep, "/"), bucket, objectKey, key), nil
}

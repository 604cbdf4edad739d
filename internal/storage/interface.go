package storage

// ArchiveClient receives gzip'd JSON batches of aged audit rows.
type ArchiveClient interface {
	UploadArchive(objectKey string, gzipData []byte) (string, error)
}

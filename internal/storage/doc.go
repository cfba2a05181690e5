// Package storage uploads build artifacts to object storage.
//
// Uploader is the narrow interface the packager depends on. S3Uploader talks
// to Amazon S3 with the default credential chain; MemoryUploader keeps
// objects in memory for tests and dry runs.
package storage

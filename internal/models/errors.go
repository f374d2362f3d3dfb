package models

import "errors"

var (
	ErrDocumentUnavailable = errors.New("document unavailable")
	ErrChunksNotFound      = errors.New("chunks not found")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
)

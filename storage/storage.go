package storage

import (
	"context"
	"io"
)

type Object struct {
	Folder      string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader stores a file and returns the URL it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

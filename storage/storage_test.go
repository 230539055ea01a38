package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUpload(t *testing.T) {
	m := NewMemory()

	url, err := m.Upload(context.Background(), Object{
		Folder: "transcripts",
		Name:   "jane-doe-1-transcript.pdf",
		Body:   strings.NewReader("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "memory://transcripts/jane-doe-1-transcript.pdf", url)

	data, ok := m.Get("transcripts/jane-doe-1-transcript.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "a.pdf", ObjectKey("", "a.pdf"))
	assert.Equal(t, "receipts/a.pdf", ObjectKey("receipts", "a.pdf"))
}

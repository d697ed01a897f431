// Package blob provides a sealed binary object with a media type.
// The content is held in memory or in a file of an afero filesystem.
package blob

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const (
	DefaultMediaType = "application/octet-stream"
	TextMediaType    = "text/plain;charset=utf-8"
)

// Blob is immutable, the content must not be modified after the creation.
type Blob struct {
	mediaType string
	size      int64
	data      []byte
	fs        afero.Fs
	path      string
}

// FromBytes creates an in-memory blob, the data slice is not copied.
func FromBytes(mediaType string, data []byte) *Blob {
	if data == nil {
		data = []byte{}
	}
	return &Blob{mediaType: normalizeType(mediaType), size: int64(len(data)), data: data}
}

func FromString(mediaType, data string) *Blob {
	return FromBytes(mediaType, []byte(data))
}

// FromFile creates a blob backed by an existing file.
func FromFile(fs afero.Fs, path, mediaType string) (*Blob, error) {
	stat, err := fs.Stat(path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot open blob file "%s"`, path)
	}
	if stat.IsDir() {
		return nil, errors.Errorf(`cannot open blob file "%s": it is a directory`, path)
	}
	return &Blob{mediaType: normalizeType(mediaType), size: stat.Size(), fs: fs, path: path}, nil
}

func (b *Blob) Type() string {
	return b.mediaType
}

func (b *Blob) Size() int64 {
	return b.size
}

// Path returns the backing file path, or an empty string for an in-memory blob.
func (b *Blob) Path() string {
	return b.path
}

func (b *Blob) Open() (io.ReadCloser, error) {
	if b.fs == nil {
		return io.NopCloser(bytes.NewReader(b.data)), nil
	}
	f, err := b.fs.Open(b.path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot open blob file "%s"`, b.path)
	}
	return f, nil
}

// Bytes loads the whole content.
func (b *Blob) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.fs == nil {
		return b.data, nil
	}
	data, err := afero.ReadFile(b.fs, b.path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot read blob file "%s"`, b.path)
	}
	return data, nil
}

func (b *Blob) Text(ctx context.Context) (string, error) {
	data, err := b.Bytes(ctx)
	return string(data), err
}

// Remove deletes the backing file, it is no-op for an in-memory blob.
func (b *Blob) Remove() error {
	if b.fs == nil {
		return nil
	}
	return b.fs.Remove(b.path)
}

// Equal compares media types and contents, the contents are compared as streams.
func Equal(ctx context.Context, a, b *Blob) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	if a.mediaType != b.mediaType || a.size != b.size {
		return false, nil
	}
	if a.fs == nil && b.fs == nil {
		return bytes.Equal(a.data, b.data), nil
	}

	ra, err := a.Open()
	if err != nil {
		return false, err
	}
	defer ra.Close()

	rb, err := b.Open()
	if err != nil {
		return false, err
	}
	defer rb.Close()

	bufA, bufB := bufio.NewReader(ra), bufio.NewReader(rb)
	chunkA, chunkB := make([]byte, 32*1024), make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		na, errA := io.ReadFull(bufA, chunkA)
		nb, errB := io.ReadFull(bufB, chunkB)
		if !bytes.Equal(chunkA[:na], chunkB[:nb]) {
			return false, nil
		}

		endA := errors.Is(errA, io.EOF) || errors.Is(errA, io.ErrUnexpectedEOF)
		endB := errors.Is(errB, io.EOF) || errors.Is(errB, io.ErrUnexpectedEOF)
		switch {
		case errA != nil && !endA:
			return false, errA
		case errB != nil && !endB:
			return false, errB
		case endA || endB:
			return endA == endB, nil
		}
	}
}

func normalizeType(mediaType string) string {
	if mediaType == "" {
		return DefaultMediaType
	}
	return mediaType
}

package stream

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/idgenerator"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const fileSpoolBufferSize = 64 * 1024

// spool is the target of accepted chunks, it is used only by the consumer goroutine.
type spool interface {
	Write(data []byte) error
	Seal(mediaType string) (*blob.Blob, error)
	Discard()
}

type spoolFactory func() (spool, error)

type memorySpool struct {
	buffer bytes.Buffer
}

func (s *memorySpool) Write(data []byte) error {
	_, err := s.buffer.Write(data)
	return err
}

func (s *memorySpool) Seal(mediaType string) (*blob.Blob, error) {
	return blob.FromBytes(mediaType, s.buffer.Bytes()), nil
}

func (s *memorySpool) Discard() {
	s.buffer.Reset()
}

// fileSpool writes to a temporary file, which is renamed to the target path by Seal.
// An existing file at the target path is replaced only by a sealed result.
type fileSpool struct {
	fs     afero.Fs
	path   string
	target string
	file   afero.File
	writer *bufio.Writer
}

// newFileSpool creates the temporary file next to the target, if the target is empty, a unique file in the temp dir is used.
func newFileSpool(fs afero.Fs, target string) (*fileSpool, error) {
	suffix := idgenerator.SpoolFileSuffix()
	var path string
	if target == "" {
		path = filepath.Join(afero.GetTempDir(fs, ""), "dbsnap-"+suffix+".idb")
		target = path
	} else {
		path = filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"."+suffix+".tmp")
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot create spool file "%s"`, path)
	}

	return &fileSpool{fs: fs, path: path, target: target, file: file, writer: bufio.NewWriterSize(file, fileSpoolBufferSize)}, nil
}

func (s *fileSpool) Write(data []byte) error {
	if _, err := s.writer.Write(data); err != nil {
		return errors.PrefixErrorf(err, `cannot write to spool file "%s"`, s.path)
	}
	return nil
}

func (s *fileSpool) Seal(mediaType string) (*blob.Blob, error) {
	if err := s.writer.Flush(); err != nil {
		s.Discard()
		return nil, errors.PrefixErrorf(err, `cannot flush spool file "%s"`, s.path)
	}
	if err := s.file.Close(); err != nil {
		_ = s.fs.Remove(s.path)
		return nil, errors.PrefixErrorf(err, `cannot close spool file "%s"`, s.path)
	}
	if s.path != s.target {
		if err := s.fs.Rename(s.path, s.target); err != nil {
			_ = s.fs.Remove(s.path)
			return nil, errors.PrefixErrorf(err, `cannot move spool file to "%s"`, s.target)
		}
	}
	return blob.FromFile(s.fs, s.target, mediaType)
}

func (s *fileSpool) Discard() {
	_ = s.file.Close()
	_ = s.fs.Remove(s.path)
}

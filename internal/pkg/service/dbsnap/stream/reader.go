package stream

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/ccoveille/go-safecast"

	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

const DefaultReadBufferSize = 64 * datasize.KB

// minReadBufferSize is the minimum accepted by bufio.
const minReadBufferSize = 16 * datasize.B

type ReaderOption func(r *LineReader)

func WithReadBufferSize(size datasize.ByteSize) ReaderOption {
	return func(r *LineReader) {
		r.bufferSize = size
	}
}

// LineReader splits a blob to lines. Each call of Lines starts a new pass from the beginning.
type LineReader struct {
	blob       *blob.Blob
	bufferSize datasize.ByteSize
}

func NewLineReader(b *blob.Blob, opts ...ReaderOption) *LineReader {
	r := &LineReader{blob: b, bufferSize: DefaultReadBufferSize}
	for _, o := range opts {
		o(r)
	}
	if r.bufferSize < minReadBufferSize {
		r.bufferSize = minReadBufferSize
	}
	return r
}

// Lines returns a lazy single-pass sequence. The blob is opened by the first Next call.
func (r *LineReader) Lines(ctx context.Context) *Lines {
	size, err := safecast.ToInt(r.bufferSize.Bytes())
	if err != nil {
		size = int(DefaultReadBufferSize.Bytes())
	}
	return &Lines{ctx: ctx, blob: r.blob, bufferSize: size}
}

// Lines is a lazy sequence of lines, the new line delimiters are stripped.
// A final fragment without the delimiter is the last line, an empty input has no line.
type Lines struct {
	ctx        context.Context
	blob       *blob.Blob
	bufferSize int
	source     io.ReadCloser
	reader     *bufio.Reader
	text       string
	line       int
	done       bool
	err        error
}

func (l *Lines) Next() bool {
	if l.done {
		return false
	}

	if err := l.ctx.Err(); err != nil {
		return l.fail(context.Cause(l.ctx))
	}

	if l.reader == nil {
		source, err := l.blob.Open()
		if err != nil {
			return l.fail(err)
		}
		l.source = source
		l.reader = bufio.NewReaderSize(source, l.bufferSize)
	}

	text, err := l.reader.ReadString('\n')
	switch {
	case err == nil:
		l.text = strings.TrimSuffix(text[:len(text)-1], "\r")
	case errors.Is(err, io.EOF) && text != "":
		l.text = strings.TrimSuffix(text, "\r")
	case errors.Is(err, io.EOF):
		l.done = true
		l.closeSource()
		return false
	default:
		return l.fail(errors.PrefixError(err, "cannot read line"))
	}

	l.line++
	return true
}

// Text returns the current line.
func (l *Lines) Text() string {
	return l.text
}

// Line returns the 1-based number of the current line.
func (l *Lines) Line() int {
	return l.line
}

func (l *Lines) Err() error {
	return l.err
}

func (l *Lines) Close() error {
	l.done = true
	return l.closeSource()
}

func (l *Lines) fail(err error) bool {
	l.err = err
	l.done = true
	l.closeSource()
	return false
}

func (l *Lines) closeSource() error {
	if l.source == nil {
		return nil
	}
	err := l.source.Close()
	l.source = nil
	return err
}

package stream

import (
	"context"

	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
)

// TextWriter writes lines to a Sink, the result has the text media type.
type TextWriter struct {
	sink *Sink
}

func NewTextWriter(opts ...Option) (*TextWriter, error) {
	opts = append(opts, WithMediaType(blob.TextMediaType))
	sink, err := NewSink(opts...)
	if err != nil {
		return nil, err
	}
	return &TextWriter{sink: sink}, nil
}

func (w *TextWriter) Sink() *Sink {
	return w.sink
}

func (w *TextWriter) WriteString(ctx context.Context, s string) error {
	return w.sink.Write(ctx, []byte(s))
}

// WriteLine appends the new line delimiter.
func (w *TextWriter) WriteLine(ctx context.Context, s string) error {
	line := make([]byte, 0, len(s)+1)
	line = append(line, s...)
	line = append(line, '\n')
	return w.sink.Write(ctx, line)
}

func (w *TextWriter) Close(ctx context.Context) error {
	return w.sink.Close(ctx)
}

func (w *TextWriter) Abort(reason error) {
	w.sink.Abort(reason)
}

func (w *TextWriter) Result(ctx context.Context) (*blob.Blob, error) {
	return w.sink.Result(ctx)
}

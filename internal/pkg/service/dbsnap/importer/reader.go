package importer

import (
	"context"
	"strings"

	"github.com/c2h5oh/datasize"

	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// Reader decodes the artifact line by line, whitespace-only lines are skipped.
// Decoding errors are DataError with the line number.
type Reader struct {
	codec *codec.Codec
	lines *stream.Lines
	meta  model.ExportMeta
	item  model.ExportItem
	err   error
}

// NewReader opens the artifact and decodes the metadata line.
func NewReader(ctx context.Context, c *codec.Codec, artifact *blob.Blob, readBufferSize datasize.ByteSize) (*Reader, error) {
	r := &Reader{
		codec: c,
		lines: stream.NewLineReader(artifact, stream.WithReadBufferSize(readBufferSize)).Lines(ctx),
	}

	meta, err := r.readMeta()
	if err != nil {
		_ = r.lines.Close()
		return nil, err
	}

	r.meta = meta
	return r, nil
}

func (r *Reader) Meta() model.ExportMeta {
	return r.meta
}

// Next decodes the next record, false is returned at the end or on an error.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}

	if !r.nextLine() {
		r.err = r.lines.Err()
		return false
	}

	value, err := r.decodeLine()
	if err != nil {
		r.err = err
		return false
	}

	item, err := model.ItemFromValue(value)
	if err != nil {
		r.err = errors.WithStack(svcerrors.NewDataErrorAtLine(err, r.lines.Line()))
		return false
	}

	r.item = item
	return true
}

func (r *Reader) Item() model.ExportItem {
	return r.item
}

// Line returns the number of the current line, starting from 1.
func (r *Reader) Line() int {
	return r.lines.Line()
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Close() error {
	return r.lines.Close()
}

func (r *Reader) readMeta() (model.ExportMeta, error) {
	if !r.nextLine() {
		if err := r.lines.Err(); err != nil {
			return model.ExportMeta{}, err
		}
		return model.ExportMeta{}, errors.WithStack(svcerrors.NewDataError(errors.New("the artifact is empty, the metadata line is missing")))
	}

	value, err := r.decodeLine()
	if err != nil {
		return model.ExportMeta{}, err
	}

	meta, err := model.MetaFromValue(value)
	if err != nil {
		return model.ExportMeta{}, errors.WithStack(svcerrors.NewDataErrorAtLine(err, r.lines.Line()))
	}
	return meta, nil
}

// decodeLine adds the line number to the codec error.
func (r *Reader) decodeLine() (any, error) {
	value, err := r.codec.DecodeString(r.lines.Text())
	if err != nil {
		var dataErr svcerrors.DataError
		if errors.As(err, &dataErr) {
			err = dataErr.Unwrap()
		}
		return nil, errors.WithStack(svcerrors.NewDataErrorAtLine(err, r.lines.Line()))
	}
	return value, nil
}

func (r *Reader) nextLine() bool {
	for r.lines.Next() {
		if strings.TrimSpace(r.lines.Text()) != "" {
			return true
		}
	}
	return false
}

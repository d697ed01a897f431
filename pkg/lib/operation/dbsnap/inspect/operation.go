// Package inspect contains the implementation of the "dbsnap inspect" command.
// The artifact is streamed and validated, nothing is written to the object store.
package inspect

import (
	"context"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/importer"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/model"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/stream"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
)

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Fs() afero.Fs
	Codec() *codec.Codec
}

type Options struct {
	Input          string
	ReadBufferSize datasize.ByteSize
}

type Result struct {
	Meta model.ExportMeta
	// Stores contains the number of records found in the artifact, in the metadata order.
	// Stores not listed in the metadata are appended.
	Stores []model.StoreMeta
}

// Total returns the number of records found in the artifact.
func (r Result) Total() (total int64) {
	for _, s := range r.Stores {
		total += s.Count
	}
	return total
}

// Consistent returns true if the found records match the metadata.
func (r Result) Consistent() bool {
	if len(r.Stores) != len(r.Meta.Stores) {
		return false
	}
	for i, s := range r.Stores {
		if s != r.Meta.Stores[i] {
			return false
		}
	}
	return true
}

func Run(ctx context.Context, o Options, d dependencies) (result Result, err error) {
	ctx, span := d.Telemetry().Tracer().Start(ctx, "dbsnap.lib.operation.inspect")
	defer span.End(&err)

	artifact, err := blob.FromFile(d.Fs(), o.Input, blob.TextMediaType)
	if err != nil {
		return Result{}, err
	}

	bufferSize := o.ReadBufferSize
	if bufferSize == 0 {
		bufferSize = stream.DefaultReadBufferSize
	}

	r, err := importer.NewReader(ctx, d.Codec(), artifact, bufferSize)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	result.Meta = r.Meta()
	index := make(map[string]int, len(result.Meta.Stores))
	for i, s := range result.Meta.Stores {
		index[s.Name] = i
		result.Stores = append(result.Stores, model.StoreMeta{Name: s.Name})
	}

	for r.Next() {
		name := r.Item().StoreName
		i, found := index[name]
		if !found {
			i = len(result.Stores)
			index[name] = i
			result.Stores = append(result.Stores, model.StoreMeta{Name: name})
		}
		result.Stores[i].Count++
	}
	if err := r.Err(); err != nil {
		return Result{}, err
	}

	logger := d.Logger()
	logger.Infof(ctx, `Database "%s", version %d.`, result.Meta.Name, result.Meta.Version)
	for i, s := range result.Stores {
		expected := int64(0)
		if i < len(result.Meta.Stores) {
			expected = result.Meta.Stores[i].Count
		}
		logger.Infof(ctx, `  store "%s": %d records, %d expected`, s.Name, s.Count, expected)
	}
	if result.Consistent() {
		logger.Infof(ctx, `Total %d records, the artifact is consistent.`, result.Total())
	} else {
		logger.Warnf(ctx, `Total %d records, %d expected, the artifact does not match its metadata.`, result.Total(), result.Meta.Total())
	}

	return result, nil
}

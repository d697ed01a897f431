// Package session runs at most one export and one import at a time.
//
// A new export cancels the previous export still in flight, with the ErrSuperseded cause.
// The same applies to imports. An export and an import may run concurrently.
//
// The CLI runs a single operation per process and does not use the package,
// it is intended for long-running programs which embed the engine.
package session

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/keboola/dbsnap/internal/pkg/log"
	"github.com/keboola/dbsnap/internal/pkg/objectstore"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/codec"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/exporter"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/importer"
	"github.com/keboola/dbsnap/internal/pkg/telemetry"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

var (
	ErrSuperseded = errors.New("superseded by a new call")
	ErrClosed     = errors.New("session closed")
)

type dependencies interface {
	Logger() log.Logger
	Telemetry() telemetry.Telemetry
	Clock() clockwork.Clock
	Codec() *codec.Codec
	ObjectStore() objectstore.Provider
}

type Session struct {
	exporter *exporter.Exporter
	importer *importer.Importer

	lock   sync.Mutex
	closed bool
	export slot
	imprt  slot
}

// slot holds the cancel function of the operation in flight.
type slot struct {
	id     uint64
	cancel context.CancelCauseFunc
}

func New(d dependencies) *Session {
	return &Session{exporter: exporter.New(d), importer: importer.New(d)}
}

// Export cancels the previous export, if any, and exports the database.
func (s *Session) Export(ctx context.Context, name string, opts ...exporter.Option) (*blob.Blob, error) {
	ctx, done, err := s.start(ctx, &s.export)
	if err != nil {
		return nil, err
	}
	defer done()
	return s.exporter.Export(ctx, name, opts...)
}

// Import cancels the previous import, if any, and imports the artifact.
func (s *Session) Import(ctx context.Context, artifact *blob.Blob, opts ...importer.Option) error {
	ctx, done, err := s.start(ctx, &s.imprt)
	if err != nil {
		return err
	}
	defer done()
	return s.importer.Import(ctx, artifact, opts...)
}

// CancelExport cancels the export in flight, if any.
func (s *Session) CancelExport(cause error) {
	s.cancel(&s.export, cause)
}

// CancelImport cancels the import in flight, if any.
func (s *Session) CancelImport(cause error) {
	s.cancel(&s.imprt, cause)
}

// Close cancels all operations in flight, following calls fail.
func (s *Session) Close() {
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	s.CancelExport(ErrClosed)
	s.CancelImport(ErrClosed)
}

func (s *Session) start(parent context.Context, slot *slot) (context.Context, func(), error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil, nil, ErrClosed
	}

	// The previous call is cancelled before the new one starts
	if slot.cancel != nil {
		slot.cancel(ErrSuperseded)
	}

	ctx, cancel := context.WithCancelCause(parent)
	slot.id++
	slot.cancel = cancel
	id := slot.id

	done := func() {
		s.lock.Lock()
		if slot.id == id {
			slot.cancel = nil
		}
		s.lock.Unlock()
		cancel(nil)
	}

	return ctx, done, nil
}

func (s *Session) cancel(slot *slot, cause error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if slot.cancel != nil {
		slot.cancel(cause)
		slot.cancel = nil
	}
}

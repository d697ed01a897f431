// Package stream provides the backpressured accumulation Sink and the lazy LineReader.
package stream

import (
	"bytes"
	"context"
	"sync"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"

	"github.com/keboola/dbsnap/internal/pkg/log"
	svcerrors "github.com/keboola/dbsnap/internal/pkg/service/common/errors"
	"github.com/keboola/dbsnap/internal/pkg/service/dbsnap/blob"
	"github.com/keboola/dbsnap/internal/pkg/utils/errors"
)

// ErrAborted is the default reason of Sink.Abort.
var ErrAborted = errors.New("sink aborted")

type sinkState int

const (
	stateOpen sinkState = iota
	stateClosed
	stateAborted
)

type config struct {
	logger    log.Logger
	capacity  int
	mediaType string
	spool     spoolFactory
}

type Option func(c *config)

func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithCapacity sets the number of chunks which can be queued for the consumer.
// The default value 0 means each write waits until the consumer receives the chunk.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

func WithMediaType(mediaType string) Option {
	return func(c *config) {
		c.mediaType = mediaType
	}
}

// WithFileSpool accumulates bytes in a temporary file, Close moves it to the path, the result is a file-backed blob.
// If the path is empty, a unique temporary file is created and kept.
func WithFileSpool(fs afero.Fs, path string) Option {
	return func(c *config) {
		c.spool = func() (spool, error) {
			return newFileSpool(fs, path)
		}
	}
}

// Sink accepts sequential byte chunks and seals them to one blob.
// Chunks are passed to a consumer goroutine through a bounded channel.
type Sink struct {
	config config
	logger log.Logger

	lock    sync.Mutex
	state   sinkState
	reason  error
	writers sync.WaitGroup

	chunks  chan []byte
	aborted chan struct{}
	done    chan struct{}

	// Set by the consumer before the done channel is closed
	result   *blob.Blob
	consumed error

	bytesCount  *atomic.Int64
	chunksCount *atomic.Int64
}

func NewSink(opts ...Option) (*Sink, error) {
	cfg := config{
		logger:    log.NewNopLogger(),
		mediaType: blob.DefaultMediaType,
		spool: func() (spool, error) {
			return &memorySpool{}, nil
		},
	}
	for _, o := range opts {
		o(&cfg)
	}

	target, err := cfg.spool()
	if err != nil {
		return nil, err
	}

	s := &Sink{
		config:      cfg,
		logger:      cfg.logger.WithComponent("sink"),
		chunks:      make(chan []byte, cfg.capacity),
		aborted:     make(chan struct{}),
		done:        make(chan struct{}),
		bytesCount:  atomic.NewInt64(0),
		chunksCount: atomic.NewInt64(0),
	}

	go s.consume(target)
	return s, nil
}

// Write returns when the consumer has accepted the chunk, or the chunk has been queued, see WithCapacity.
// The data slice can be reused by the caller after the return.
func (s *Sink) Write(ctx context.Context, data []byte) error {
	s.lock.Lock()
	if s.state != stateOpen {
		s.lock.Unlock()
		return errors.WithStack(svcerrors.NewClosedError())
	}
	s.writers.Add(1)
	s.lock.Unlock()
	defer s.writers.Done()

	select {
	case s.chunks <- bytes.Clone(data):
		return nil
	case <-s.aborted:
		return errors.WithStack(svcerrors.NewClosedError())
	case <-s.done:
		return s.consumed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Close flushes all accepted chunks and seals the result.
// Close is idempotent and it has no effect after Abort.
func (s *Sink) Close(ctx context.Context) error {
	s.lock.Lock()
	if s.state != stateOpen {
		s.lock.Unlock()
		if s.state == stateClosed {
			return s.wait(ctx)
		}
		return nil
	}
	s.state = stateClosed
	s.lock.Unlock()

	// Wait for in-flight writes, then no one else can write to the channel
	s.writers.Wait()
	close(s.chunks)

	return s.wait(ctx)
}

// Abort discards the accumulated bytes, the Result returns an error.
// Abort returns after the consumer has released the spool.
// Abort is idempotent and it has no effect after Close.
func (s *Sink) Abort(reason error) {
	s.lock.Lock()
	if s.state != stateOpen {
		s.lock.Unlock()
		return
	}
	if reason == nil {
		reason = ErrAborted
	}
	s.state = stateAborted
	s.reason = reason
	close(s.aborted)
	s.lock.Unlock()

	<-s.done
}

// Result waits until the sink is closed or aborted.
func (s *Sink) Result(ctx context.Context) (*blob.Blob, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state == stateAborted {
		return nil, errors.PrefixError(s.reason, "sink has been aborted")
	}
	return s.result, nil
}

// Bytes returns the number of bytes accepted by the consumer.
func (s *Sink) Bytes() int64 {
	return s.bytesCount.Load()
}

// Chunks returns the number of chunks accepted by the consumer.
func (s *Sink) Chunks() int64 {
	return s.chunksCount.Load()
}

func (s *Sink) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.consumed
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *Sink) consume(target spool) {
	defer close(s.done)

	for {
		select {
		case <-s.aborted:
			target.Discard()
			s.logger.Debug(context.Background(), "sink aborted")
			return
		case data, ok := <-s.chunks:
			if !ok {
				s.result, s.consumed = target.Seal(s.config.mediaType)
				if s.consumed == nil {
					s.logger.With(attribute.Int64("bytes", s.bytesCount.Load()), attribute.Int64("chunks", s.chunksCount.Load())).Debug(context.Background(), "sink sealed, <bytes> bytes in <chunks> chunks")
				}
				return
			}
			if err := target.Write(data); err != nil {
				s.consumed = err
				target.Discard()
				return
			}
			s.bytesCount.Add(int64(len(data)))
			s.chunksCount.Inc()
		}
	}
}

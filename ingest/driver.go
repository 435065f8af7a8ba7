// Package ingest orchestrates one ingest request end to end: it wires a
// Window, an xmlstream.AsyncParser and a splitter.FirstLevelSplitter
// together, drains parser tokens into chunks, hands each chunk to a
// chunkstore.Store, and applies backpressure by never reading more inbound
// bytes than the parser and store have already absorbed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/bhiemenz/georocket/chunkstore"
	"github.com/bhiemenz/georocket/splitter"
	"github.com/bhiemenz/georocket/window"
	"github.com/bhiemenz/georocket/xmlstream"
)

// ErrIO wraps a failure reading the inbound byte stream.
var ErrIO = errors.New("ingest: inbound read failed")

// Ack is returned on a successful ingest. ChunkNames holds the store's
// assigned name for every chunk emitted, in document order.
type Ack struct {
	ChunkNames []string
}

const readBufferSize = 32 * 1024

// Driver runs one ingest at a time per instance; a Driver is created fresh
// for every request by NewDriver and discarded when the request completes.
type Driver struct {
	store   chunkstore.Store
	metrics *Metrics
	logger  zerolog.Logger
}

// NewDriver builds a Driver that persists chunks to store. metrics may be
// nil, in which case counters are simply not kept.
func NewDriver(store chunkstore.Store, metrics *Metrics, logger zerolog.Logger) *Driver {
	return &Driver{store: store, metrics: metrics, logger: logger}
}

// Ingest reads inbound to completion, splitting it into first-level chunks
// and persisting each one before reading further bytes. It returns
// Cancelled (via ctx.Err()) if ctx is done, a *xmlstream.ParseError if the
// XML is malformed, an error wrapping ErrIO on a read failure, or an error
// wrapping chunkstore.ErrTransient/ErrPermanent if the store rejects a
// chunk.
func (d *Driver) Ingest(ctx context.Context, inbound io.Reader) (Ack, error) {
	if d.metrics != nil {
		d.metrics.ingestStarted()
		defer d.metrics.ingestFinished()
	}

	win := window.New()
	parser := xmlstream.New()
	defer func() {
		if err := parser.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("xmlstream parser close failed during teardown")
		}
	}()
	split := splitter.New(win)

	var names []string
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return Ack{}, err
		}

		n, rerr := inbound.Read(buf)
		if n > 0 {
			fed := append([]byte(nil), buf[:n]...)
			win.Append(fed)
			parser.Feed(fed)
			if d.metrics != nil {
				d.metrics.bytesIngested(int64(n))
			}

			done, err := d.drain(ctx, win, parser, split, &names)
			if err != nil {
				return Ack{}, err
			}
			if done {
				return Ack{ChunkNames: names}, nil
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				parser.EndOfInput()
				done, err := d.drain(ctx, win, parser, split, &names)
				if err != nil {
					return Ack{}, err
				}
				if !done {
					return Ack{}, fmt.Errorf("ingest: parser did not reach end of document after EOF")
				}
				return Ack{ChunkNames: names}, nil
			}
			return Ack{}, fmt.Errorf("%w: %v", ErrIO, rerr)
		}
	}
}

// drain runs parser.Next in a tight loop, feeding each event to the
// splitter and persisting any resulting chunk, until the parser reports
// Incomplete (more inbound bytes are needed) or EndDocument (ingest is
// complete). It is the only place that awaits store.Add, so at most one Add
// is ever in flight per ingest.
func (d *Driver) drain(ctx context.Context, win *window.Window, parser *xmlstream.AsyncParser, split *splitter.FirstLevelSplitter, names *[]string) (done bool, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ev, err := parser.Next()
		if err != nil {
			return false, err
		}
		if ev.Kind == xmlstream.Incomplete {
			return false, nil
		}

		chunk, err := split.OnEvent(ev)
		if err != nil {
			return false, err
		}

		if chunk != nil {
			ack, err := d.store.Add(ctx, chunk.Text)
			if err != nil {
				return false, fmt.Errorf("ingest: store add failed: %w", err)
			}
			*names = append(*names, ack.Name)
			if d.metrics != nil {
				d.metrics.chunkEmitted()
			}
			if advErr := win.Advance(ev.Offset); advErr != nil {
				d.logger.Warn().Err(advErr).Msg("window advance failed after chunk ack")
			}
		}

		if ev.Kind == xmlstream.EndDocument {
			return true, nil
		}
	}
}

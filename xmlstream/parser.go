// Package xmlstream adapts the stdlib's pull-style encoding/xml.Decoder into
// a feed-driven parser: bytes are pushed in with Feed, and events are pulled
// out one at a time with Next, which reports Incomplete instead of blocking
// when the fed bytes do not yet contain a full token.
package xmlstream

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sync"
)

// TokenKind enumerates the token variants an AsyncParser can produce.
type TokenKind int

const (
	StartDocument TokenKind = iota
	StartElement
	EndElement
	Characters
	Comment
	ProcessingInstruction
	EndDocument
	Incomplete
)

// QName is a qualified XML name. Space holds the resolved namespace URI
// (as encoding/xml resolves it), not the raw prefix.
type QName struct {
	Space string
	Local string
}

// Attr is a non-namespace attribute observed on a StartElement.
type Attr struct {
	Name  QName
	Value string
}

// NamespaceBinding is a single prefix-to-URI declaration introduced by a
// start tag. Prefix is empty for a default (xmlns="...") declaration.
type NamespaceBinding struct {
	Prefix string
	URI    string
}

// TokenEvent is a single tagged token pulled from the stream. StartOffset
// and Offset are absolute byte offsets into the fed stream: StartOffset is
// the offset of the token's first byte, Offset is one past its last byte.
// Incomplete carries no offsets.
type TokenEvent struct {
	Kind        TokenKind
	Name        QName
	Namespaces  []NamespaceBinding
	Attrs       []Attr
	StartOffset int64
	Offset      int64
}

// ParseError is returned by Next when the underlying tokenizer rejects the
// fed input. It is terminal: the parser is unusable afterwards.
type ParseError struct {
	Offset int64
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xmlstream: malformed XML at offset %d: %v", e.Offset, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ErrClosed is returned by Next once the parser has been closed or has run
// to completion.
var ErrClosed = errors.New("xmlstream: parser closed")

type tokenMsg struct {
	ev  TokenEvent
	err error
}

// AsyncParser is a feed-driven adapter over encoding/xml.Decoder. It is not
// safe for concurrent use by multiple goroutines calling Feed/Next/Close at
// the same time, matching the single-threaded-per-ingest model it is meant
// to serve; internally it runs one worker goroutine that drives the
// blocking stdlib decoder and hands events back through a synchronous
// rendezvous channel.
type AsyncParser struct {
	feeder *feeder
	dec    *xml.Decoder

	events  chan tokenMsg
	doneCh  chan struct{}
	closeCh chan struct{}
	closeOnce sync.Once
}

// New creates an AsyncParser ready to accept fed bytes.
func New() *AsyncParser {
	f := newFeeder()
	dec := xml.NewDecoder(f)

	p := &AsyncParser{
		feeder:  f,
		dec:     dec,
		events:  make(chan tokenMsg),
		doneCh:  make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	go p.run()
	return p
}

// Feed appends bytes to the parser's input. It never blocks.
func (p *AsyncParser) Feed(b []byte) {
	p.feeder.append(b)
}

// EndOfInput signals that no more bytes will be fed. After this call, Next
// returns the final events followed by EndDocument and never Incomplete
// again.
func (p *AsyncParser) EndOfInput() {
	p.feeder.closeInput()
}

// Next returns the next token event, or Incomplete if the bytes fed so far
// do not contain a complete next token. It blocks until one of those is
// known, which is bounded by the cooperative feed/next protocol: it never
// blocks on network I/O itself.
func (p *AsyncParser) Next() (TokenEvent, error) {
	select {
	case m, ok := <-p.events:
		if !ok {
			return TokenEvent{}, ErrClosed
		}
		if m.err != nil {
			return TokenEvent{}, m.err
		}
		return m.ev, nil
	case <-p.feeder.starved:
		// A starvation signal raised before the latest Feed or EndOfInput
		// is stale: the decoder still has bytes (or EOF) left to consume.
		p.feeder.mu.Lock()
		stale := p.feeder.closed || len(p.feeder.buf) > 0
		p.feeder.mu.Unlock()
		if stale {
			return p.Next()
		}
		return TokenEvent{Kind: Incomplete}, nil
	case <-p.doneCh:
		return TokenEvent{}, ErrClosed
	}
}

// Close releases parser resources. It is safe to call more than once and
// always returns nil; failures during teardown of the internal worker are
// not fatal to the caller and are not expected to occur, so there is
// nothing to report.
func (p *AsyncParser) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		p.feeder.closeInput()
	})
	<-p.doneCh
	return nil
}

// run drives the stdlib decoder over the feeder and republishes each token
// as an absolute-offset TokenEvent. It is the only goroutine that touches
// p.dec.
func (p *AsyncParser) run() {
	defer close(p.doneCh)

	if !p.send(tokenMsg{ev: TokenEvent{Kind: StartDocument}}) {
		return
	}

	for {
		start := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			if err == io.EOF {
				p.send(tokenMsg{ev: TokenEvent{Kind: EndDocument, StartOffset: start, Offset: start}})
				return
			}
			p.send(tokenMsg{err: &ParseError{Offset: start, Cause: err}})
			return
		}
		end := p.dec.InputOffset()

		ev, ok := toTokenEvent(tok, start, end)
		if !ok {
			continue
		}
		if !p.send(tokenMsg{ev: ev}) {
			return
		}
	}
}

func (p *AsyncParser) send(m tokenMsg) bool {
	select {
	case p.events <- m:
		return true
	case <-p.closeCh:
		return false
	}
}

func toTokenEvent(tok xml.Token, start, end int64) (TokenEvent, bool) {
	switch t := tok.(type) {
	case xml.StartElement:
		var namespaces []NamespaceBinding
		var attrs []Attr
		for _, a := range t.Attr {
			switch {
			case a.Name.Space == "xmlns":
				namespaces = append(namespaces, NamespaceBinding{Prefix: a.Name.Local, URI: a.Value})
			case a.Name.Space == "" && a.Name.Local == "xmlns":
				namespaces = append(namespaces, NamespaceBinding{Prefix: "", URI: a.Value})
			default:
				attrs = append(attrs, Attr{Name: QName{Space: a.Name.Space, Local: a.Name.Local}, Value: a.Value})
			}
		}
		return TokenEvent{
			Kind:        StartElement,
			Name:        QName{Space: t.Name.Space, Local: t.Name.Local},
			Namespaces:  namespaces,
			Attrs:       attrs,
			StartOffset: start,
			Offset:      end,
		}, true
	case xml.EndElement:
		return TokenEvent{
			Kind:        EndElement,
			Name:        QName{Space: t.Name.Space, Local: t.Name.Local},
			StartOffset: start,
			Offset:      end,
		}, true
	case xml.CharData:
		return TokenEvent{Kind: Characters, StartOffset: start, Offset: end}, true
	case xml.Comment:
		return TokenEvent{Kind: Comment, StartOffset: start, Offset: end}, true
	case xml.ProcInst:
		return TokenEvent{Kind: ProcessingInstruction, Name: QName{Local: t.Target}, StartOffset: start, Offset: end}, true
	case xml.Directive:
		return TokenEvent{Kind: Comment, StartOffset: start, Offset: end}, true
	default:
		return TokenEvent{}, false
	}
}

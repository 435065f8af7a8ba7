// Package splitter implements the first-level XML splitting state machine:
// it watches token events and element depth and, each time a direct child
// of the document root closes, cuts a self-contained chunk document out of
// the window's retained bytes.
package splitter

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/bhiemenz/georocket/window"
	"github.com/bhiemenz/georocket/xmlstream"
)

const defaultProlog = `<?xml version="1.0"?>`

// Chunk is a standalone, well-formed XML document carved out of one
// first-level element of the source, wrapped so it parses on its own.
type Chunk struct {
	Text string
}

// FirstLevelSplitter tracks nesting depth and namespace scope and produces
// a Chunk each time a direct child of the root element closes. It holds no
// byte data of its own; chunk text is sliced out of the Window it was built
// against.
type FirstLevelSplitter struct {
	win *window.Window

	depth         int
	chunkStart    int64
	hasChunkStart bool

	prolog string

	headerPrefix string
	headerSuffix string

	nsStack [][]xmlstream.NamespaceBinding
}

// New returns a splitter that slices chunk text out of win.
func New(win *window.Window) *FirstLevelSplitter {
	return &FirstLevelSplitter{win: win, prolog: defaultProlog}
}

// OnEvent feeds one token event (with its offsets already attached) into
// the state machine. It returns a non-nil Chunk exactly when a first-level
// element has just closed.
func (s *FirstLevelSplitter) OnEvent(ev xmlstream.TokenEvent) (*Chunk, error) {
	switch ev.Kind {
	case xmlstream.ProcessingInstruction:
		if s.depth == 0 && ev.Name.Local == "xml" {
			text, err := s.win.TextSlice(ev.StartOffset, ev.Offset)
			if err == nil {
				s.prolog = text
			}
		}
		return nil, nil

	case xmlstream.StartElement:
		return s.onStartElement(ev)

	case xmlstream.EndElement:
		return s.onEndElement(ev)

	default:
		// Characters, Comment, StartDocument, EndDocument, Incomplete:
		// never contribute to chunking outside a first-level element.
		return nil, nil
	}
}

func (s *FirstLevelSplitter) onStartElement(ev xmlstream.TokenEvent) (*Chunk, error) {
	switch s.depth {
	case 0:
		wrapperName := reconstructName(ev.Name, ev.Namespaces)
		s.headerPrefix = s.prolog + "\n<" + wrapperName + renderNamespaceBindings(ev.Namespaces) + ">\n"
		s.headerSuffix = "\n</" + wrapperName + ">\n"
		s.nsStack = append(s.nsStack, ev.Namespaces)
		s.depth = 1
	case 1:
		s.chunkStart = ev.StartOffset
		s.hasChunkStart = true
		s.nsStack = append(s.nsStack, ev.Namespaces)
		s.depth = 2
	default:
		s.nsStack = append(s.nsStack, ev.Namespaces)
		s.depth++
	}
	return nil, nil
}

func (s *FirstLevelSplitter) onEndElement(ev xmlstream.TokenEvent) (*Chunk, error) {
	if s.depth == 1 {
		s.popNamespaceFrame()
		s.depth = 0
		return nil, nil
	}

	s.depth--
	s.popNamespaceFrame()

	if s.depth != 1 {
		return nil, nil
	}

	if !s.hasChunkStart {
		return nil, fmt.Errorf("splitter: closed a first-level element without an open chunk")
	}

	text, err := s.win.TextSlice(s.chunkStart, ev.Offset)
	if err != nil {
		return nil, fmt.Errorf("splitter: slicing chunk text: %w", err)
	}
	s.hasChunkStart = false

	return &Chunk{Text: s.headerPrefix + text + s.headerSuffix}, nil
}

func (s *FirstLevelSplitter) popNamespaceFrame() {
	if len(s.nsStack) == 0 {
		return
	}
	s.nsStack = s.nsStack[:len(s.nsStack)-1]
}

// reconstructName rewrites a resolved QName back into prefixed text using
// the namespace bindings introduced in the given scopes, preferring a
// prefixed match over the bare local name.
func reconstructName(name xmlstream.QName, scopes ...[]xmlstream.NamespaceBinding) string {
	if name.Space != "" {
		for _, scope := range scopes {
			for _, b := range scope {
				if b.Prefix != "" && b.URI == name.Space {
					return b.Prefix + ":" + name.Local
				}
			}
		}
	}
	return name.Local
}

func renderNamespaceBindings(bindings []xmlstream.NamespaceBinding) string {
	if len(bindings) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range bindings {
		sb.WriteByte(' ')
		if b.Prefix == "" {
			sb.WriteString(`xmlns="`)
		} else {
			sb.WriteString("xmlns:")
			sb.WriteString(b.Prefix)
			sb.WriteString(`="`)
		}
		sb.WriteString(escapeAttrValue(b.URI))
		sb.WriteByte('"')
	}
	return sb.String()
}

func escapeAttrValue(v string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(v)); err != nil {
		return v
	}
	return buf.String()
}

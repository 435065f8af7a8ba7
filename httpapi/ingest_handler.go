package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/bhiemenz/georocket/chunkstore"
	"github.com/bhiemenz/georocket/ingest"
	"github.com/bhiemenz/georocket/xmlstream"
)

const sniffWindowSize = 512

// handleIngest implements the §6 ingest endpoint: POST /store with an XML
// body. It sniffs the body's content family before committing to a parse,
// mirroring the composite-parser's io.ReadFull + io.MultiReader re-stitch,
// so a body that plainly is not XML is rejected as InvalidArgument (400)
// without ever reaching the splitter.
func (s *Server) handleIngest(c *gin.Context) {
	if err := s.ingestMu.Acquire(c.Request.Context(), 1); err != nil {
		return
	}
	defer s.ingestMu.Release(1)

	sniffBlock := make([]byte, sniffWindowSize)
	n, err := io.ReadFull(c.Request.Body, sniffBlock)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		c.String(http.StatusInternalServerError, "Could not parse XML: %s", err.Error())
		return
	}
	sniffBlock = sniffBlock[:n]

	mime := mimetype.Detect(sniffBlock)
	if !mimeLooksLikeXML(mime) {
		c.String(http.StatusBadRequest, "Could not parse XML: unsupported content type %s", mime.String())
		return
	}

	body := io.MultiReader(bytes.NewReader(sniffBlock), c.Request.Body)

	driver := ingest.NewDriver(s.store, s.metrics, s.logger)
	ack, err := driver.Ingest(c.Request.Context(), body)
	if err != nil {
		s.writeIngestError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Accepted file - indexing in progress",
		"chunkIds": ack.ChunkNames,
	})
}

func mimeLooksLikeXML(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		switch m.String() {
		case "application/xml", "text/xml":
			return true
		}
	}
	// An empty or tiny body sniffs as text/plain; the parser itself will
	// reject anything that is not well-formed XML.
	return mime.Is("text/plain")
}

func (s *Server) writeIngestError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Cancelled: not reported as HTTP, the connection is already gone.
		return
	}

	var parseErr *xmlstream.ParseError
	if errors.As(err, &parseErr) {
		c.String(http.StatusBadRequest, "Could not parse XML: %s", parseErr.Error())
		return
	}

	if errors.Is(err, chunkstore.ErrTransient) || errors.Is(err, chunkstore.ErrPermanent) || errors.Is(err, ingest.ErrIO) {
		c.String(http.StatusInternalServerError, "Could not parse XML: %s", err.Error())
		return
	}

	c.String(http.StatusInternalServerError, "Could not parse XML: %s", err.Error())
}

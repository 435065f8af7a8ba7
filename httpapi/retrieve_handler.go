package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bhiemenz/georocket/chunkstore"
)

// handleRetrieve implements the §6 retrieve endpoint: GET /store/:name
// streams the chunk's bytes verbatim with a Content-Length header, unless
// the response is being gzip-compressed, in which case the length is not
// known ahead of the write and the header is omitted.
func (s *Server) handleRetrieve(c *gin.Context) {
	name := c.Param("name")

	r, size, err := s.store.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, chunkstore.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	defer r.Close()

	if _, compressing := c.Writer.(*gzipResponseWriter); !compressing {
		c.Header("Content-Length", fmt.Sprintf("%d", size))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, r); err != nil {
		s.logger.Warn().Err(err).Str("chunk", name).Msg("retrieve: write to client failed")
	}
}

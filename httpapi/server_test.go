package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bhiemenz/georocket/chunkstore/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{
		Store:               memory.New(),
		Logger:              zerolog.Nop(),
		MaxConcurrentIngest: 4,
	})
}

func TestIngestThenRetrieveRoundTrips(t *testing.T) {
	s := newTestServer(t)

	doc := `<?xml version="1.0"?><r xmlns="u"><a>x</a></r>`
	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(doc))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest: got status %d, body %q", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message  string   `json:"message"`
		ChunkIDs []string `json:"chunkIds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding ingest response: %v", err)
	}
	if resp.Message != "Accepted file - indexing in progress" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if len(resp.ChunkIDs) != 1 {
		t.Fatalf("got %d chunk ids, want 1", len(resp.ChunkIDs))
	}

	getReq := httptest.NewRequest(http.MethodGet, "/store/"+resp.ChunkIDs[0], nil)
	getRec := httptest.NewRecorder()
	s.Engine.ServeHTTP(getRec, getReq)

	if getRec.Code != http.StatusOK {
		t.Fatalf("retrieve: got status %d", getRec.Code)
	}
	want := "<?xml version=\"1.0\"?>\n<r xmlns=\"u\">\n<a>x</a>\n</r>\n"
	if getRec.Body.String() != want {
		t.Fatalf("retrieve body:\ngot:  %q\nwant: %q", getRec.Body.String(), want)
	}
}

func TestRetrieveUnknownChunkReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/store/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestIngestMalformedXMLReturns400(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(`<r><a></b></r>`))
	req.Header.Set("Content-Type", "application/xml")
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Body.String(), "Could not parse XML: ") {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestIngestNonXMLBodyReturns400(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(strings.Repeat("\x00\x01\x02binary", 50)))
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestMetricsEndpointReflectsIngests(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(`<r><a/></r>`))
	req.Header.Set("Content-Type", "application/xml")
	s.Engine.ServeHTTP(httptest.NewRecorder(), req)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRec := httptest.NewRecorder()
	s.Engine.ServeHTTP(metricsRec, metricsReq)

	var snap struct {
		TotalIngests int64 `json:"totalIngests"`
		ChunksTotal  int64 `json:"chunksTotal"`
	}
	if err := json.Unmarshal(metricsRec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if snap.TotalIngests != 1 {
		t.Fatalf("got totalIngests %d, want 1", snap.TotalIngests)
	}
	if snap.ChunksTotal != 1 {
		t.Fatalf("got chunksTotal %d, want 1", snap.ChunksTotal)
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/config"
	"github.com/cellarworks/cellar-cli/internal/extract"
	"github.com/cellarworks/cellar-cli/internal/ingest"
	"github.com/cellarworks/cellar-cli/internal/model"
	"github.com/cellarworks/cellar-cli/internal/segment"
)

// headingAwareExtractor stands in for the knowledge service: all-caps
// lines are headings, everything else is a wine.
type headingAwareExtractor struct{}

func (headingAwareExtractor) Extract(_ context.Context, line model.CandidateLine) (*model.Extraction, error) {
	if strings.ToUpper(line.Text) == line.Text {
		return nil, nil
	}
	return &model.Extraction{Name: line.Text, Confidence: 0.9, Source: model.SourceClaude}, nil
}

func newTestServer(t *testing.T) (*Server, catalog.Store) {
	t.Helper()
	store := catalog.NewMemory()
	pipeline := ingest.NewPipeline(headingAwareExtractor{}, extract.NewCheapExtractor(), store)
	scheduler := ingest.NewScheduler(pipeline, store, config.IngestConfig{
		Tiers: []config.BatchTier{{MinLines: 0, BatchSize: 100}},
	})
	svc := ingest.NewService(segment.New(4), scheduler, store)
	return New(svc, store, "memory", true), store
}

func TestUploadJSONBody(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{
		"text": "Opus One 2018 Napa Valley\nRED WINES\nChâteau Margaux 2015\n",
	})
	resp, err := http.Post(ts.URL+"/api/wines/upload", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Success bool               `json:"success"`
		Message string             `json:"message"`
		Wines   []model.WineRecord `json:"wines"`
		Stats   struct {
			Processed     int `json:"processed"`
			Errors        int `json:"errors"`
			DatabaseTotal int `json:"databaseTotal"`
		} `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Stats.Processed)
	assert.Equal(t, 0, out.Stats.Errors)
	assert.Equal(t, 2, out.Stats.DatabaseTotal)
	assert.Len(t, out.Wines, 2)

	n, err := store.CountWines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUploadMultipartFile(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "list.txt")
	require.NoError(t, err)
	fmt.Fprintln(fw, "Barolo Riserva 2016")
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/wines/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUploadEmptyBodyRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/wines/upload", "application/json", strings.NewReader(`{"text":"  "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Success)
}

func TestListWinesPaginationAndSearch(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for i := 0; i < 5; i++ {
		_, err := store.UpsertWine(context.Background(), &model.Extraction{
			Name: fmt.Sprintf("Wine %02d", i), Vintage: "2020", Confidence: 0.8, Source: model.SourceClaude,
		})
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/api/wines?page=2&pageSize=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Wines      []model.WineRecord `json:"wines"`
		Pagination struct {
			Total       int `json:"total"`
			TotalPages  int `json:"totalPages"`
			CurrentPage int `json:"currentPage"`
			PageSize    int `json:"pageSize"`
		} `json:"pagination"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	assert.Len(t, out.Wines, 2)
	assert.Equal(t, 5, out.Pagination.Total)
	assert.Equal(t, 3, out.Pagination.TotalPages)
	assert.Equal(t, 2, out.Pagination.CurrentPage)
	assert.Equal(t, 2, out.Pagination.PageSize)

	resp, err = http.Get(ts.URL + "/api/wines?search=wine+03")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Wines, 1)
	assert.Equal(t, "Wine 03", out.Wines[0].Name)
}

func TestListWinesEmptyCatalogReturnsArray(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/wines")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw["wines"]))
}

func TestStatusEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	_, err := store.UpsertWine(context.Background(), &model.Extraction{Name: "Barolo", Confidence: 0.8, Source: model.SourceClaude})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		ExtractorConfigured bool   `json:"extractorConfigured"`
		StoreDriver         string `json:"storeDriver"`
		DatabaseTotal       int    `json:"databaseTotal"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.ExtractorConfigured)
	assert.Equal(t, "memory", out.StoreDriver)
	assert.Equal(t, 1, out.DatabaseTotal)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

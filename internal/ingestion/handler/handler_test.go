package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion/publisher"
)

type memRepo struct {
	rows map[string]ingestion.PassageInput
}

func (r *memRepo) Upsert(ctx context.Context, passages []ingestion.PassageInput) error {
	for _, p := range passages {
		r.rows[p.ID] = p
	}
	return nil
}

func (r *memRepo) Delete(ctx context.Context, id string) (bool, error) {
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

type chanTrigger chan string

func (c chanTrigger) Request(ctx context.Context, trigger string) error {
	c <- trigger
	return nil
}

func setup() (*http.ServeMux, *memRepo, chanTrigger) {
	repo := &memRepo{rows: make(map[string]ingestion.PassageInput)}
	trigger := make(chanTrigger, 4)
	mux := http.NewServeMux()
	New(publisher.New(repo, nil), trigger).Register(mux)
	return mux, repo, trigger
}

func TestIngest(t *testing.T) {
	mux, repo, trigger := setup()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passages",
		strings.NewReader(`{"passages":[{"id":"m1","competition":"MathCup","text":"报名时间为3月1日"}]}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ingestion.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"m1"}, resp.IDs)
	assert.Contains(t, repo.rows, "m1")

	select {
	case reason := <-trigger:
		assert.Equal(t, "ingest", reason)
	case <-time.After(time.Second):
		t.Fatal("local rebuild was not requested")
	}
}

func TestIngestValidation(t *testing.T) {
	mux, _, _ := setup()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passages", strings.NewReader(`{"passages":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/passages", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestDelete(t *testing.T) {
	mux, repo, trigger := setup()
	repo.rows["m1"] = ingestion.PassageInput{ID: "m1"}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/passages/m1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "delete", <-trigger)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/passages/m1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")
}

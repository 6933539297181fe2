package publisher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
)

type fakeRepo struct {
	rows      map[string]ingestion.PassageInput
	upsertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: make(map[string]ingestion.PassageInput)}
}

func (r *fakeRepo) Upsert(ctx context.Context, passages []ingestion.PassageInput) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for _, p := range passages {
		r.rows[p.ID] = p
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) (bool, error) {
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

type fakeProducer struct {
	events []kafka.Event
	err    error
}

func (p *fakeProducer) Publish(ctx context.Context, event kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestIngestStoresAndAnnounces(t *testing.T) {
	repo := newFakeRepo()
	prod := &fakeProducer{}
	pub := New(repo, prod)

	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{Passages: []ingestion.PassageInput{
		{ID: " m1 ", Document: "mathcup.txt", Text: "报名时间为3月1日"},
		{Document: "mathcup.txt", Competition: "MathCup", Text: "决赛在5月举行"},
	}})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusQueued, resp.Status)
	require.Len(t, resp.IDs, 2)
	assert.Equal(t, "m1", resp.IDs[0])
	assert.Regexp(t, `^mathcup\.txt#[0-9a-f]{12}$`, resp.IDs[1])
	assert.Len(t, repo.rows, 2)

	require.Len(t, prod.events, 1)
	assert.Equal(t, EventCorpusUpdated, prod.events[0].Type)
	event := prod.events[0].Value.(ingestion.CorpusUpdatedEvent)
	assert.Equal(t, "ingest", event.Reason)
	assert.Equal(t, resp.IDs, event.PassageIDs)
}

func TestIngestSurvivesAnnounceFailure(t *testing.T) {
	pub := New(newFakeRepo(), &fakeProducer{err: errors.New("broker unreachable")})
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{Passages: []ingestion.PassageInput{{Text: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusStored, resp.Status)
}

func TestIngestWithoutKafka(t *testing.T) {
	pub := New(newFakeRepo(), nil)
	assert.False(t, pub.Notifies())
	resp, err := pub.Ingest(context.Background(), &ingestion.IngestRequest{Passages: []ingestion.PassageInput{{Text: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusStored, resp.Status)
}

func TestIngestStoreFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErr = errors.New("connection refused")
	prod := &fakeProducer{}
	_, err := New(repo, prod).Ingest(context.Background(), &ingestion.IngestRequest{Passages: []ingestion.PassageInput{{Text: "x"}}})
	assert.ErrorIs(t, err, repo.upsertErr)
	assert.Empty(t, prod.events)
}

func TestDelete(t *testing.T) {
	repo := newFakeRepo()
	repo.rows["m1"] = ingestion.PassageInput{ID: "m1"}
	prod := &fakeProducer{}
	pub := New(repo, prod)

	require.NoError(t, pub.Delete(context.Background(), "m1"))
	assert.Len(t, prod.events, 1)

	err := pub.Delete(context.Background(), "m1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestDeriveIDIsStable(t *testing.T) {
	a := DeriveID(ingestion.PassageInput{Document: "rules.md", Competition: "MathCup", Text: "报名"})
	b := DeriveID(ingestion.PassageInput{Document: "rules.md", Competition: "MathCup", Text: "报名"})
	c := DeriveID(ingestion.PassageInput{Document: "rules.md", Competition: "RoboCup", Text: "报名"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^passage#`, DeriveID(ingestion.PassageInput{Text: "x"}))
}

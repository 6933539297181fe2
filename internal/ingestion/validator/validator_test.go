package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
)

func TestValidateAcceptsWellFormed(t *testing.T) {
	req := &ingestion.IngestRequest{Passages: []ingestion.PassageInput{
		{ID: "m1", Document: "mathcup.txt", Competition: "MathCup", Text: "报名时间为3月1日"},
		{Document: "mathcup.txt", Text: "决赛在5月举行"},
	}}
	assert.NoError(t, ValidateIngestRequest(req))
}

func TestValidateReportsFields(t *testing.T) {
	req := &ingestion.IngestRequest{Passages: []ingestion.PassageInput{
		{ID: "m1", Text: "报名时间"},
		{ID: "m1", Text: "   "},
		{ID: strings.Repeat("x", 300), Text: "ok", Page: -1},
	}}
	err := ValidateIngestRequest(req)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields["passages[1].id"], "duplicates passages[0].id")
	assert.Contains(t, verr.Fields, "passages[1].text")
	assert.Contains(t, verr.Fields, "passages[2].id")
	assert.Contains(t, verr.Fields, "passages[2].page")
	assert.NotContains(t, verr.Fields, "passages[0].text")
}

func TestValidateBatchSize(t *testing.T) {
	var verr *ValidationError
	require.ErrorAs(t, ValidateIngestRequest(&ingestion.IngestRequest{}), &verr)
	assert.Contains(t, verr.Fields, "passages")

	big := &ingestion.IngestRequest{Passages: make([]ingestion.PassageInput, maxPassages+1)}
	for i := range big.Passages {
		big.Passages[i].Text = "x"
	}
	require.ErrorAs(t, ValidateIngestRequest(big), &verr)
	assert.Contains(t, verr.Fields["passages"], "at most")
}

func TestValidationErrorIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	assert.Equal(t, "a: first; b: second", err.Error())
}

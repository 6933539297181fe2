package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "textdir", cfg.Corpus.Source)
	assert.Equal(t, 1500, cfg.Corpus.ChunkSize)
	assert.Equal(t, "corpus.updated", cfg.Kafka.Topics.CorpusUpdated)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.False(t, cfg.Semantic.Enabled)
	assert.Equal(t, 100, cfg.Analytics.BatchSize)
	assert.Equal(t, time.Minute, cfg.Analytics.SnapshotInterval)
	assert.Equal(t, 5000, cfg.Analytics.MaxQuestions)
	assert.False(t, cfg.Corpus.Writable())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	data := `
server:
  port: 9999
corpus:
  source: file
  path: passages.yaml
redis:
  cacheTTL: 30s
retrieval:
  router:
    minScore: 2.5
    relaxFactor: 0.25
  synonyms:
    报名: [注册]
  infoTypes:
    - name: registration
      cues: [报名时间]
  competitions:
    - name: MathCup
      aliases: [数学杯]
  scorer:
    infoTypeBoost: 1.5
    phraseBoosts:
      报名时间: 2.0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("CR_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Corpus.Source)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 2.5, cfg.Retrieval.Router.MinScore)
	require.Len(t, cfg.Retrieval.Competitions, 1)
	assert.Equal(t, []string{"数学杯"}, cfg.Retrieval.Competitions[0].Aliases)
	assert.Equal(t, 2.0, cfg.Retrieval.Scorer.PhraseBoosts["报名时间"])
	assert.Equal(t, 0.25, cfg.Retrieval.Router.RelaxFactor)
	assert.Equal(t, 1.5, cfg.Retrieval.Scorer.InfoTypeBoost)
	assert.Equal(t, []string{"注册"}, cfg.Retrieval.Synonyms["报名"])
	require.Len(t, cfg.Retrieval.InfoTypes, 1)
	assert.Equal(t, []string{"报名时间"}, cfg.Retrieval.InfoTypes[0].Cues)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Corpus.Source = "s3"
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Corpus.Source = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Corpus.Writable())

	cfg = defaultConfig()
	cfg.Retrieval.Router.RelaxFactor = 1.5
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Semantic.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Search.MaxResults = 1
	assert.Error(t, cfg.Validate())

	cfg = defaultConfig()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

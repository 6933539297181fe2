package retrieval

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/competition"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/confidence"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/infotype"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/router"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/semantic"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/stopwords"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/resilience"
)

// OptionsFromConfig translates service configuration into engine options.
// It loads the stopword list and, when enabled, connects the embedding
// client. m may be nil.
func OptionsFromConfig(cfg *config.Config, m *metrics.Metrics) (Options, error) {
	rc := cfg.Retrieval

	tcfg := overlayTokenizer(tokenizer.DefaultConfig(), tokenizer.Config{
		MinTokenLength: rc.Tokenizer.MinTokenLength,
		HeadWindow:     rc.Tokenizer.HeadWindow,
		HeadBonus:      rc.Tokenizer.HeadBonus,
		TermBonus:      rc.Tokenizer.TermBonus,
		SynonymWeight:  rc.Tokenizer.SynonymWeight,
	})

	entries := competition.DefaultEntries()
	if len(rc.Competitions) > 0 {
		entries = make([]competition.Entry, 0, len(rc.Competitions))
		for _, c := range rc.Competitions {
			entries = append(entries, competition.Entry{Name: c.Name, Aliases: c.Aliases})
		}
	}

	scfg := ranker.Config{
		LeadWindow:    rc.Scorer.LeadWindow,
		LeadBonus:     rc.Scorer.LeadBonus,
		PhraseBoosts:  rc.Scorer.PhraseBoosts,
		InfoTypeBoost: rc.Scorer.InfoTypeBoost,
	}

	ccfg := confidence.DefaultConfig()
	cc := rc.Confidence
	if cc.MinScore > 0 {
		ccfg.MinScore = cc.MinScore
	}
	if cc.SourceSaturation > 0 {
		ccfg.SourceSaturation = cc.SourceSaturation
	}
	if cc.QualityWeight > 0 || cc.SourceWeight > 0 || cc.SpreadWeight > 0 {
		ccfg.QualityWeight, ccfg.SourceWeight, ccfg.SpreadWeight = cc.QualityWeight, cc.SourceWeight, cc.SpreadWeight
	}
	if cc.OverlapFloor > 0 {
		ccfg.OverlapFloor = cc.OverlapFloor
	}
	if cc.FabricationThreshold > 0 {
		ccfg.FabricationThreshold = cc.FabricationThreshold
	}
	if cc.FabricationPenalty > 0 {
		ccfg.FabricationPenalty = cc.FabricationPenalty
	}
	if cc.RejectionCap > 0 {
		ccfg.RejectionCap = cc.RejectionCap
	}
	if len(cc.RejectionPhrases) > 0 {
		ccfg.RejectionPhrases = cc.RejectionPhrases
	}

	var types []infotype.Type
	if len(rc.InfoTypes) > 0 {
		types = make([]infotype.Type, 0, len(rc.InfoTypes))
		for _, t := range rc.InfoTypes {
			types = append(types, infotype.Type{Name: t.Name, Cues: t.Cues, Patterns: t.Patterns})
		}
	}

	opts := Options{
		Tokenizer:        tcfg,
		Lexicon:          rc.Tokenizer.Lexicon,
		Stopwords:        stopwords.Load(cfg.Corpus.StopwordsPath),
		Synonyms:         rc.Synonyms,
		InfoTypes:        types,
		QueryMaxKeywords: rc.Tokenizer.QueryMaxKeywords,
		Catalog:          competition.NewCatalog(entries),
		Builder: index.BuilderConfig{
			Workers:     rc.BuildWorkers,
			MaxKeywords: rc.Tokenizer.PassageMaxKeywords,
		},
		Scorer:     scfg,
		Router:     router.Config{MinScore: rc.Router.MinScore, RelaxFactor: rc.Router.RelaxFactor},
		Confidence: ccfg,
		Metrics:    m,
	}

	if cfg.Semantic.Enabled {
		emb, err := semantic.NewOpenAIEmbedder(cfg.Semantic.Host, cfg.Semantic.Model, cfg.Semantic.Token)
		if err != nil {
			return Options{}, fmt.Errorf("creating embedder: %w", err)
		}
		opts.Embedder = semantic.NewGuarded(emb, cfg.Semantic.Timeout, resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Semantic.BreakerThreshold,
			ResetTimeout:     cfg.Semantic.BreakerReset,
			OnStateChange:    resilience.ReportState(dependencyState(m)),
		})
		opts.Scorer.SemanticWeight = cfg.Semantic.Weight
		opts.SemanticTimeout = cfg.Semantic.Timeout
	}
	return opts, nil
}

func dependencyState(m *metrics.Metrics) *prometheus.GaugeVec {
	if m == nil {
		return nil
	}
	return m.DependencyState
}

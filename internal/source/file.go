package source

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/retrieval/index"
)

// FileSource reads a passage list from a YAML or JSON file. The document
// is either a bare list of passages or a mapping with a "passages" key.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Load(ctx context.Context) ([]index.RawPassage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading passage file %s: %w", s.path, err)
	}
	passages, err := ParsePassages(data)
	if err != nil {
		return nil, fmt.Errorf("parsing passage file %s: %w", s.path, err)
	}
	return passages, nil
}

// ParsePassages decodes a YAML or JSON passage document.
func ParsePassages(data []byte) ([]index.RawPassage, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	doc := root.Content[0]

	var passages []index.RawPassage
	switch doc.Kind {
	case yaml.SequenceNode:
		if err := doc.Decode(&passages); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var wrapped struct {
			Passages []index.RawPassage `yaml:"passages"`
		}
		if err := doc.Decode(&wrapped); err != nil {
			return nil, err
		}
		passages = wrapped.Passages
	default:
		return nil, fmt.Errorf("expected a passage list, got %s", kindName(doc.Kind))
	}
	return passages, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("node kind %d", k)
	}
}

// pkg/vocabulary/store.go
package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/David-Botos/user-normalizer/pkg/model"
	"github.com/David-Botos/user-normalizer/pkg/source"
)

const fileVersion = 1

type vocabularyFile struct {
	Version int                 `yaml:"version"`
	Fields  map[string][]string `yaml:"fields"`
}

// Save writes the vocabulary as YAML, replacing any existing file atomically
func Save(path string, vocab *model.CategoryVocabulary) error {
	data, err := yaml.Marshal(vocabularyFile{Version: fileVersion, Fields: vocab.Map()})
	if err != nil {
		return fmt.Errorf("failed to encode vocabulary: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-vocabulary-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads a vocabulary written by Save
func Load(path string) (*model.CategoryVocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f vocabularyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode vocabulary %s: %w", path, err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("unsupported vocabulary version %d in %s", f.Version, path)
	}
	return model.NewCategoryVocabulary(f.Fields), nil
}

// LoadOrBuild reuses the vocabulary at path when it exists, otherwise builds
// it from the sources and saves it to path. An empty path always builds.
func LoadOrBuild(ctx context.Context, path string, b *Builder, sources []source.BatchSource) (*model.CategoryVocabulary, error) {
	if path != "" {
		vocab, err := Load(path)
		if err == nil {
			b.logger.Info("Loaded category vocabulary", zap.String("path", path))
			return vocab, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	vocab, err := b.Build(ctx, sources)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := Save(path, vocab); err != nil {
			return nil, fmt.Errorf("failed to save vocabulary: %w", err)
		}
		b.logger.Info("Saved category vocabulary", zap.String("path", path))
	}
	return vocab, nil
}

// Package store provides the two durable key/value stores behind the flow
// engine: the answer store (normalized question -> answer) and the flow store
// (company key -> ordered step list). Both persist to flat, hand-editable
// JSON files, rewritten in full after every mutation so a crash mid-job never
// loses prior progress. A file that fails to parse is treated as an empty
// store with a warning; persistence corruption is never fatal.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// AnswerStore is the durable mapping from normalized question text to a
// previously given answer, boolean-as-string, or file path. There is exactly
// one writer process and writes are sequential, so no locking is needed.
type AnswerStore struct {
	path    string
	log     *zap.Logger
	answers map[string]string
}

// OpenAnswers loads the answer store at path, substituting an empty store on
// a missing or malformed file.
func OpenAnswers(path string, logger *zap.Logger) *AnswerStore {
	s := &AnswerStore{
		path:    path,
		log:     logger.Named("answers"),
		answers: map[string]string{},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Could not read answers file, starting empty.", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.answers); err != nil {
		s.log.Warn("Answers file is malformed, starting empty.", zap.String("path", path), zap.Error(err))
		s.answers = map[string]string{}
		return s
	}
	s.log.Info("Loaded answers.", zap.Int("count", len(s.answers)))
	return s
}

// Get returns the stored answer for the normalized key.
func (s *AnswerStore) Get(key string) (string, bool) {
	v, ok := s.answers[key]
	return v, ok
}

// Put stores an answer and persists the whole store immediately.
func (s *AnswerStore) Put(key, value string) error {
	s.answers[key] = value
	return s.Flush()
}

// Evict removes an entry (used when a stored file path no longer exists on
// disk) and persists immediately. Evicting an absent key is a no-op.
func (s *AnswerStore) Evict(key string) error {
	if _, ok := s.answers[key]; !ok {
		return nil
	}
	delete(s.answers, key)
	return s.Flush()
}

// Len reports the number of stored answers.
func (s *AnswerStore) Len() int { return len(s.answers) }

// Keys returns the stored keys in sorted order. Used by diagnostics only.
func (s *AnswerStore) Keys() []string {
	keys := make([]string, 0, len(s.answers))
	for k := range s.answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush rewrites the backing file in full. Called after every mutation and
// again at the end of every job.
func (s *AnswerStore) Flush() error {
	if err := writeJSONFile(s.path, s.answers); err != nil {
		s.log.Error("Failed to persist answers.", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("persisting answers to %s: %w", s.path, err)
	}
	return nil
}

// writeJSONFile rewrites path with pretty-printed JSON so the stores stay
// hand-editable.
func writeJSONFile(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing: %w", err)
	}
	return nil
}

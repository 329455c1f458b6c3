package store

import (
	"fmt"
	"os"

	"encoding/json"

	"go.uber.org/zap"

	"github.com/ygulsen/applypilot/api/schemas"
)

// FlowStore is the durable mapping from normalized company key to the ordered
// list of recorded application-flow steps. Replay always consumes the list
// from index zero in order; the store only ever appends.
type FlowStore struct {
	path  string
	log   *zap.Logger
	flows map[string][]schemas.Step
}

// OpenFlows loads the flow store at path, substituting an empty store on a
// missing or malformed file.
func OpenFlows(path string, logger *zap.Logger) *FlowStore {
	s := &FlowStore{
		path:  path,
		log:   logger.Named("flows"),
		flows: map[string][]schemas.Step{},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("Could not read flows file, starting empty.", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if err := json.Unmarshal(raw, &s.flows); err != nil {
		s.log.Warn("Flows file is malformed, starting empty.", zap.String("path", path), zap.Error(err))
		s.flows = map[string][]schemas.Step{}
		return s
	}
	s.log.Info("Loaded company flows.", zap.Int("companies", len(s.flows)))
	return s
}

// Flow returns the recorded steps for the company key, in append order. The
// returned slice is a copy; mutating it does not touch the store. An unseen
// company yields an empty list.
func (s *FlowStore) Flow(companyKey string) []schemas.Step {
	steps := s.flows[companyKey]
	out := make([]schemas.Step, len(steps))
	copy(out, steps)
	return out
}

// AppendStep appends one step to the company's flow and persists the entire
// store immediately. Durability beats batching here: a crash between steps
// must not lose the steps already defined.
func (s *FlowStore) AppendStep(companyKey string, step schemas.Step) error {
	if err := step.Validate(); err != nil {
		return fmt.Errorf("refusing to record invalid step: %w", err)
	}
	s.flows[companyKey] = append(s.flows[companyKey], step)
	return s.Flush()
}

// Complete reports whether the recorded flow for the company ends in a
// terminal step. A flow without a terminal marker is incomplete and falls
// back to definition mode when replay exhausts it.
func (s *FlowStore) Complete(companyKey string) bool {
	steps := s.flows[companyKey]
	return len(steps) > 0 && steps[len(steps)-1].Kind == schemas.StepFinalSubmit
}

// Flush rewrites the backing file in full.
func (s *FlowStore) Flush() error {
	if err := writeJSONFile(s.path, s.flows); err != nil {
		s.log.Error("Failed to persist flows.", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("persisting flows to %s: %w", s.path, err)
	}
	return nil
}

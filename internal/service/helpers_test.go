package service

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pharmguard-mcp-server/internal/knowledge"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testKB() *knowledge.KnowledgeBase {
	return knowledge.MustDefault()
}

// stubGenerator returns a fixed payload or error and records prompts.
type stubGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
	block    bool
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

const validExplanationJSON = `{"genetic_finding":"CYP2D6 *4 detected","biological_mechanism":"No enzyme activity","clinical_impact":"Reduced analgesia","recommended_action":"Use an alternative opioid"}`

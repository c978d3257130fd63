package automation

import (
	"context"
	"fmt"
)

// Patterns manages the automation pattern lifecycle: detected candidates
// arrive from the external pattern detector, get surfaced to a human
// (suggested), and on acceptance spawn exactly one agent built from the
// pattern's recipe. Rejection is terminal; rejected patterns are immutable.
type Patterns struct {
	repo     Repository
	registry *Registry
	logger   Logger
}

// NewPatterns creates the pattern service.
func NewPatterns(repo Repository, registry *Registry, logger Logger) *Patterns {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Patterns{
		repo:     repo,
		registry: registry,
		logger:   logger,
	}
}

// Intake records a detected pattern from the external detector.
func (p *Patterns) Intake(ctx context.Context, pattern *AutomationPattern) error {
	if pattern.ID == "" {
		pattern.ID = GenerateID()
	}
	if pattern.Status == "" {
		pattern.Status = PatternDetected
	}
	if pattern.OrgID == "" {
		return fmt.Errorf("%w: org_id is required", ErrInvalidAgent)
	}
	if err := ValidateName(pattern.Name); err != nil {
		return err
	}

	if err := p.repo.CreatePattern(ctx, pattern); err != nil {
		return err
	}
	p.logger.Info("pattern recorded", "id", pattern.ID, "org_id", pattern.OrgID)
	return nil
}

// Suggest surfaces a detected pattern to a human.
func (p *Patterns) Suggest(ctx context.Context, patternID string) (*AutomationPattern, error) {
	pattern, err := p.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if pattern.Status == PatternRejected {
		return nil, ErrPatternRejected
	}
	if pattern.Status != PatternDetected {
		return nil, fmt.Errorf("%w: cannot suggest from %s", ErrPatternNotSuggested, pattern.Status)
	}

	pattern.Status = PatternSuggested
	if err := p.repo.UpdatePattern(ctx, pattern); err != nil {
		return nil, err
	}
	return pattern, nil
}

// Accept marks a suggested pattern accepted and spawns its agent from the
// recipe. A pattern spawns at most one agent: accepting a pattern that
// already carries an agent reference fails without side effects.
//
// The spawned agent starts in the created state with a back-reference to
// the pattern; moving it into shadow is a separate lifecycle operation.
func (p *Patterns) Accept(ctx context.Context, patternID, createdBy string) (*AIAgent, error) {
	pattern, err := p.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if pattern.Status == PatternRejected {
		return nil, ErrPatternRejected
	}
	if pattern.Status != PatternSuggested {
		return nil, ErrPatternNotSuggested
	}
	if pattern.AgentID != nil {
		return nil, ErrPatternHasAgent
	}

	agent := &AIAgent{
		ID:          GenerateID(),
		OrgID:       pattern.OrgID,
		PatternID:   &pattern.ID,
		Name:        pattern.Name,
		Description: cloneStringPtr(pattern.Description),
		Status:      StatusCreated,
		Config:      pattern.Recipe.deepCopy(),
	}
	if createdBy != "" {
		agent.CreatedBy = &createdBy
	}

	if err := p.registry.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	pattern.Status = PatternAccepted
	pattern.AgentID = &agent.ID
	if err := p.repo.UpdatePattern(ctx, pattern); err != nil {
		// The agent exists but the back-link did not land; surface the
		// error so the operator can re-link rather than hiding it.
		return nil, fmt.Errorf("linking spawned agent: %w", err)
	}

	p.logger.Info("pattern accepted", "pattern_id", pattern.ID, "agent_id", agent.ID)
	return agent, nil
}

// Reject marks a pattern rejected. Terminal: rejected patterns can never be
// suggested or accepted again.
func (p *Patterns) Reject(ctx context.Context, patternID string) (*AutomationPattern, error) {
	pattern, err := p.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if pattern.Status == PatternRejected {
		return pattern, nil // already terminal
	}
	if pattern.Status == PatternAccepted {
		return nil, fmt.Errorf("%w: cannot reject an accepted pattern", ErrPatternNotSuggested)
	}

	pattern.Status = PatternRejected
	if err := p.repo.UpdatePattern(ctx, pattern); err != nil {
		return nil, err
	}

	p.logger.Info("pattern rejected", "pattern_id", pattern.ID)
	return pattern, nil
}

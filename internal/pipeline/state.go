package pipeline

import (
	"fmt"

	"seoforge/internal/domain"
)

var nextState = map[domain.RunState]domain.RunState{
	domain.StateStarted:        domain.StatePlanned,
	domain.StatePlanned:        domain.StateImagesResolved,
	domain.StateImagesResolved: domain.StateBodyGenerated,
	domain.StateBodyGenerated:  domain.StatePublished,
	domain.StatePublished:      domain.StateCompleted,
}

// run tracks one pass through the state machine.
type run struct {
	result *RunResult
}

func (c *Coordinator) newRun(keyword string) *run {
	return &run{result: &RunResult{
		RunID:       c.newRunID(),
		Keyword:     keyword,
		Slug:        domain.Slug(keyword),
		State:       domain.StateStarted,
		Transitions: []domain.RunState{domain.StateStarted},
	}}
}

// advance moves to the next state; skipping or repeating a state is a bug.
func (r *run) advance(to domain.RunState) error {
	if want, ok := nextState[r.result.State]; !ok || want != to {
		return fmt.Errorf("pipeline: illegal transition %s -> %s", r.result.State, to)
	}
	r.result.State = to
	r.result.Transitions = append(r.result.Transitions, to)
	return nil
}

// resume takes a fresh run straight to published for a post created by an
// earlier run.
func (r *run) resume(post *domain.PublishedPost) error {
	if r.result.State != domain.StateStarted {
		return fmt.Errorf("pipeline: cannot resume from %s", r.result.State)
	}
	r.result.Post = post
	r.result.Resumed = true
	r.result.State = domain.StatePublished
	r.result.Transitions = append(r.result.Transitions, domain.StatePublished)
	return nil
}

func (r *run) fail(stage domain.Stage, err error) {
	if r.result.State == domain.StateFailed {
		return
	}
	r.result.FailedStage = stage
	r.result.Error = err.Error()
	r.result.State = domain.StateFailed
	r.result.Transitions = append(r.result.Transitions, domain.StateFailed)
}

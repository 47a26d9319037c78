package pipeline

import "fmt"

// Stage is a state of one verification run
type Stage string

const (
	StageIdle              Stage = "idle"
	StageAcquiring         Stage = "acquiring"
	StageDecontextualizing Stage = "decontextualizing"
	StageVerifying         Stage = "verifying"
	StageDone              Stage = "done"
	StageErrored           Stage = "errored"
)

// transitions lists the stages reachable from each stage
var transitions = map[Stage][]Stage{
	StageIdle:              {StageAcquiring, StageErrored},
	StageAcquiring:         {StageDecontextualizing, StageErrored},
	StageDecontextualizing: {StageVerifying, StageErrored},
	StageVerifying:         {StageDone, StageErrored},
}

// Terminal reports whether s can only be left by starting a new run
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageErrored
}

// CanTransition reports whether a run may move from s to next
func (s Stage) CanTransition(next Stage) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// machine tracks one run's stage
type machine struct {
	stage Stage
	emit  func(Stage)
}

func newMachine(emit func(Stage)) *machine {
	return &machine{stage: StageIdle, emit: emit}
}

func (m *machine) advance(next Stage) error {
	if !m.stage.CanTransition(next) {
		return fmt.Errorf("invalid stage transition %s -> %s", m.stage, next)
	}
	m.stage = next
	if m.emit != nil {
		m.emit(next)
	}
	return nil
}

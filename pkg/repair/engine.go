package repair

import (
	"strings"

	"github.com/auditflow/auditflow/internal/model"
)

// Engine runs the normalization pipeline over raw blocks. It is stateless
// and safe for concurrent use.
type Engine struct {
	stages []Stage
}

// NewEngine returns an Engine with the default stage pipeline.
func NewEngine() *Engine {
	return &Engine{stages: DefaultStages()}
}

// Outcome is the result of repairing one block. Either Value is set, or
// Reason/Stage/Partial describe why the block could not be resolved.
type Outcome struct {
	// Value is the structured result; nil on failure.
	Value *model.Value

	// Applied lists stages whose output differed from their input. Empty
	// when the block parsed directly.
	Applied []string

	Reason  Reason
	Stage   string
	Partial string
}

// Success reports whether the block resolved to a structured value.
func (o Outcome) Success() bool { return o.Value != nil }

// Repair normalizes and parses one block. Already-valid JSON parses on the
// fast path without running any stage. Failure carries the best-effort
// normalized text at the point the pipeline stopped.
func (e *Engine) Repair(block model.RawBlock) Outcome {
	text := strings.TrimSpace(block.Text)

	if v, err := model.ParseJSON(text); err == nil {
		return Outcome{Value: v}
	}

	var applied []string
	current := text
	for _, st := range e.stages {
		next, serr := st.Apply(current)
		if serr != nil {
			return Outcome{
				Applied: applied,
				Reason:  serr.Reason,
				Stage:   serr.Stage,
				Partial: current,
			}
		}
		if next != current {
			applied = append(applied, st.Name())
		}
		current = next
	}

	v, err := model.ParseJSON(current)
	if err != nil {
		return Outcome{
			Applied: applied,
			Reason:  ReasonUnparseable,
			Stage:   "parse",
			Partial: current,
		}
	}
	return Outcome{Value: v, Applied: applied}
}

// Resolve repairs a block and wraps it on failure, so every block yields
// exactly one value. The Outcome is returned for accounting either way.
func (e *Engine) Resolve(block model.RawBlock) (*model.Value, Outcome) {
	o := e.Repair(block)
	if o.Success() {
		return o.Value, o
	}
	return Wrap(block, o), o
}

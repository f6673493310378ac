package repair

import (
	"fmt"

	"github.com/auditflow/auditflow/internal/model"
)

// Keys of the wrapper object produced for unrepairable blocks.
const (
	RawKey        = "_raw"
	ParseErrorKey = "_parse_error"
)

// Wrap builds the guaranteed substitute value for a block the engine could
// not resolve: an object holding exactly the verbatim block text and a
// description of the failure with its source location. Wrap performs no
// parsing of the raw text and never fails.
func Wrap(block model.RawBlock, o Outcome) *model.Value {
	obj := model.NewObject()
	obj.Set(RawKey, model.String(block.Text))
	obj.Set(ParseErrorKey, model.String(describeFailure(block, o)))
	return obj
}

func describeFailure(block model.RawBlock, o Outcome) string {
	reason := o.Reason
	if reason == ReasonNone {
		reason = ReasonUnparseable
	}
	if o.Stage != "" {
		return fmt.Sprintf("%s at %s (stage %s)", reason, block.Location(), o.Stage)
	}
	return fmt.Sprintf("%s at %s", reason, block.Location())
}

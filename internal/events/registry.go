package events

import (
	"fmt"

	"github.com/AaronLay10/lazysearch/internal/search"
)

var allowedEvents = map[string]struct{}{
	// search
	search.EventInitialized:          {},
	search.EventNodeExpanded:         {},
	search.EventSolutionFound:        {},
	search.EventParentSwitched:       {},
	search.EventTerminated:           {},
	search.EventNodeDeferred:         {},
	search.EventNodePruned:           {},
	search.EventNodeFailed:           {},
	search.EventNodeReevaluated:      {},
	search.EventLateTerminationCheck: {},

	// operator
	"operator.cancel": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}

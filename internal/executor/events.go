package executor

import (
	"time"

	"github.com/marcus/replaychain/internal/chain"
)

// EventType classifies executor lifecycle events.
type EventType int

const (
	EventChainStart EventType = iota // chain execution begins
	EventTaskStart                   // a task begins
	EventTaskEnd                     // a task finished
	EventChainEnd                    // chain execution finished
)

// Event carries data about an executor lifecycle event.
type Event struct {
	Type        EventType
	Time        time.Time
	ExecutionID string
	ChainID     string
	ChainName   string
	TaskID      string
	TaskType    string
	TaskStatus  chain.TaskStatus  // for EventTaskEnd: final task status
	ChainStatus chain.ChainStatus // for EventChainEnd: final chain status
	Completed   int               // tasks attempted so far
	Total       int               // tasks in the chain
	Duration    time.Duration     // for EventTaskEnd/EventChainEnd: elapsed time
	Error       string            // error message if applicable
}

// EventHandler is a callback that receives executor events.
type EventHandler func(Event)

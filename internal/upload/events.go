package upload

import "fmt"

// Event is emitted by a batch run. Finished is always the last one.
type Event interface {
	isEvent()
}

type Status struct {
	Text string
}

// OverallProgress is the share of items processed, 0 to 100.
type OverallProgress struct {
	Percent int
}

// ItemProgress may be dropped when the consumer falls behind.
type ItemProgress struct {
	Index       int
	DisplayName string
	Sent        int64
	Total       int64
	Percent     float64
	Speed       string
	ETA         string
}

type ItemCompleted struct {
	Index       int
	DisplayName string
	OK          bool
	Cancelled   bool
	// Note is the size summary on success or the error text on failure.
	Note      string
	MessageID int
}

// Finished closes a run. Failed excludes items stopped by cancellation,
// which are counted in CancelledItems. Err is set when the run could not
// process any item.
type Finished struct {
	Succeeded      int
	Failed         int
	CancelledItems int
	Cancelled      bool
	Err            error
}

func (Status) isEvent()          {}
func (OverallProgress) isEvent() {}
func (ItemProgress) isEvent()    {}
func (ItemCompleted) isEvent()   {}
func (Finished) isEvent()        {}

// SendError is the failure of a single item.
type SendError struct {
	File string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s: %v", e.File, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

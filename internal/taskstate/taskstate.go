// Package taskstate implements the task status state machine.
package taskstate

// Status is one of the six states a task can occupy.
type Status string

const (
	Paused  Status = "paused"
	Pending Status = "pending"
	Running Status = "running"
	Pausing Status = "pausing"
	Done    Status = "done"
	Error   Status = "error"
)

// edge is one allowed transition.
type edge struct {
	from Status
	to   Status
}

// allowed enumerates every legal transition. Anything not listed here is
// rejected by CanTransition.
var allowed = map[edge]bool{
	{Paused, Pending}:  true, // execute request
	{Error, Pending}:   true, // execute request (retry after error)
	{Pending, Running}: true, // dispatcher picks up
	{Running, Pausing}: true, // pause request
	{Pausing, Paused}:  true, // loop observes pause
	{Running, Paused}:  true, // loop observes pause before an item started
	{Running, Done}:    true, // loop exhausts inputs
	{Running, Error}:   true, // Fatal or unhandled exception
	{Pausing, Error}:   true, // Fatal observed while pausing
	{Pausing, Done}:    true, // inputs exhausted while a pause was pending
	{Running, Pending}: true, // startup reconciliation step 1
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	return allowed[edge{from, to}]
}

// initial is the status assigned at task creation.
const initial = Paused

// Initial returns the status assigned to a newly created task.
func Initial() Status { return initial }

// IsTerminal reports whether status is done or error, the two statuses from
// which no loop is actively running (error may still be re-entered via a
// fresh execute request).
func IsTerminal(s Status) bool {
	return s == Done || s == Error
}

// CanExecute reports whether an execute request is legal from status s.
func CanExecute(s Status) bool {
	// Running->Pending is legal only for startup reconciliation, never for
	// an execute request.
	return s != Running && CanTransition(s, Pending)
}

// CanPause reports whether a pause request is legal from status s.
func CanPause(s Status) bool {
	return CanTransition(s, Pausing)
}

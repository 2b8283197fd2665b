package command

import "fmt"

// NonZeroExitError is returned when the subprocess ran but did not exit 0.
// Code is -1 and Signal is set when the process was killed by a signal.
type NonZeroExitError struct {
	Code   int
	Signal string
}

func (e *NonZeroExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("command terminated by signal %s", e.Signal)
	}
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// Category names the failure for metric tags.
func (e *NonZeroExitError) Category() string { return "NonZeroExit" }

// SpawnError is returned when the subprocess could not be started.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Category names the failure for metric tags.
func (e *SpawnError) Category() string { return "SpawnFailure" }

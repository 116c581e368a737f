package timeseries

import "errors"

var (
	// ErrNoDataInRange indicates a rollback search found no records within the
	// lookback horizon. Callers surface it as "no data for this query"; it is
	// never a system fault.
	ErrNoDataInRange = errors.New("timeseries: no data in range")

	// ErrNotFound indicates a symbol has no records at all.
	ErrNotFound = errors.New("timeseries: not found")
)

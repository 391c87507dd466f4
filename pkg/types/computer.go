package types

import "time"

// ComputerInfo contains computer registration information.
type ComputerInfo struct {
	ID      int
	Name    string
	Address string
	Workers int
	Labels  map[string]string
}

// ComputerState represents the state of a computer as seen by the space.
type ComputerState string

const (
	// ComputerStateOnline indicates the computer receives tasks.
	ComputerStateOnline ComputerState = "online"
	// ComputerStateOffline indicates the computer failed and no longer receives tasks.
	ComputerStateOffline ComputerState = "offline"
	// ComputerStateExited indicates the computer was told to exit.
	ComputerStateExited ComputerState = "exited"
)

// ComputerStatus represents the current status of a computer.
type ComputerStatus struct {
	State       ComputerState
	ActiveTasks int
	Dispatched  int64
	Failures    int
	LastSeen    time.Time
}

// ComputerEvent represents a computer lifecycle event.
type ComputerEvent struct {
	Type       ComputerEventType
	ComputerID int
	Computer   *ComputerInfo
}

// ComputerEventType defines the type of computer event.
type ComputerEventType string

const (
	// ComputerEventRegistered indicates a computer was registered.
	ComputerEventRegistered ComputerEventType = "registered"
	// ComputerEventUnregistered indicates a computer was unregistered.
	ComputerEventUnregistered ComputerEventType = "unregistered"
	// ComputerEventOffline indicates a computer went offline.
	ComputerEventOffline ComputerEventType = "offline"
)

// ExecutionStats contains timing statistics of tasks run by one computer.
type ExecutionStats struct {
	Executed  int64
	Split     int64
	Failed    int64
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration
	P90       time.Duration
	P99       time.Duration
	StartedAt time.Time
}

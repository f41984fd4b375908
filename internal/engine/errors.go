package engine

import "errors"

var (
	ErrNotReady     = errors.New("timeframe not ready")
	ErrQueueFull    = errors.New("timeframe queue full")
	ErrStopped      = errors.New("engine stopped")
	ErrNotStarted   = errors.New("engine not started")
	ErrStaleTicker  = errors.New("ticker older than global ticker state")
	ErrAlreadyStart = errors.New("engine already started")
)

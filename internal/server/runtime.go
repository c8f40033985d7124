package server

import (
	"os"
	"sync/atomic"
	"time"
)

var (
	started  = time.Now()
	connSeen uint64
)

func markConnAccepted() { atomic.AddUint64(&connSeen, 1) }

// Uptime returns the time elapsed since this package was loaded.
func Uptime() time.Duration { return time.Since(started) }

// ConnCount returns the number of connections accepted by either
// ListenAndServe or ListenAndServeStatus so far.
func ConnCount() uint64 { return atomic.LoadUint64(&connSeen) }

// PID returns the current process id.
func PID() int { return os.Getpid() }

// StartedAt returns the time this package was loaded.
func StartedAt() time.Time { return started }

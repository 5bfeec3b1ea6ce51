package storage

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Namer produces unique, time-ordered recording file names.
type Namer struct {
	counter uint64
}

// NewNamer returns a namer starting at 1.
func NewNamer() *Namer {
	return &Namer{}
}

// Next returns a file name derived from the capture time. The counter is
// shared across origins so names never collide within a process.
func (n *Namer) Next(origin string, at time.Time) string {
	seq := atomic.AddUint64(&n.counter, 1)
	return fmt.Sprintf("%s-%s-%06d.wav", origin, at.UTC().Format("20060102T150405.000000000Z"), seq)
}

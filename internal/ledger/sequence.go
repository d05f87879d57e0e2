package ledger

import "sync/atomic"

// Sequencer provides monotonically increasing order ids.
type Sequencer struct{ n atomic.Int64 }

// Seed sets the last assigned id. Next calls return values above it.
func (s *Sequencer) Seed(v int64) { s.n.Store(v) }

// Next returns the next id.
func (s *Sequencer) Next() int64 { return s.n.Add(1) }

package tclient

import (
	"sync"
	"time"
)

// epoch anchors the timestamp component of generated ids so they stay
// well clear of int64 overflow for the lifetime of any realistic
// deployment.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	nodeBits     = 10
	sequenceBits = 12
	maxNode      = int64(-1) ^ (int64(-1) << nodeBits)
	maxSequence  = int64(-1) ^ (int64(-1) << sequenceBits)
	nodeShift    = sequenceBits
	timeShift    = sequenceBits + nodeBits
)

// SeqIDGenerator produces monotonically increasing, node-scoped 64-bit
// request ids: a snowflake-style packing of milliseconds-since-epoch,
// node id, and a per-millisecond sequence, so correlating a response back
// to its request never depends on a shared counter across nodes.
type SeqIDGenerator struct {
	mu       sync.Mutex
	nodeID   int64
	lastTime int64
	seq      int64
}

// NewSeqIDGenerator builds a generator for the given node id, which the
// caller is responsible for keeping unique and in [0, 1023].
func NewSeqIDGenerator(nodeID int64) *SeqIDGenerator {
	return &SeqIDGenerator{nodeID: nodeID & maxNode}
}

// Next returns the next id. It is safe for concurrent use.
func (g *SeqIDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Since(epoch).Milliseconds()
	if now == g.lastTime {
		g.seq = (g.seq + 1) & maxSequence
		if g.seq == 0 {
			for now <= g.lastTime {
				now = time.Since(epoch).Milliseconds()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastTime = now

	return (now << timeShift) | (g.nodeID << nodeShift) | g.seq
}

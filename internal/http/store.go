package http

import (
	"sync"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
)

// DefaultRunStoreSize is how many results the server remembers.
const DefaultRunStoreSize = 256

// RunStore keeps the most recent results by run ID. Oldest entries are
// evicted first.
type RunStore struct {
	mu    sync.RWMutex
	size  int
	order []string
	runs  map[string]*orchestrator.Result
}

// NewRunStore creates a store holding at most size results.
func NewRunStore(size int) *RunStore {
	if size < 1 {
		size = 1
	}
	return &RunStore{size: size, runs: make(map[string]*orchestrator.Result, size)}
}

// Put stores res, evicting the oldest result when full.
func (rs *RunStore) Put(res *orchestrator.Result) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.runs[res.RunID]; !ok {
		rs.order = append(rs.order, res.RunID)
	}
	rs.runs[res.RunID] = res
	for len(rs.order) > rs.size {
		delete(rs.runs, rs.order[0])
		rs.order = rs.order[1:]
	}
}

// Get returns the result for id.
func (rs *RunStore) Get(id string) (*orchestrator.Result, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	res, ok := rs.runs[id]
	return res, ok
}

// Len returns the number of stored results.
func (rs *RunStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.runs)
}

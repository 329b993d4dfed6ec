// Package reqctx implements the per-request coordination cache (component D):
// a short-lived scope shared by the repository and the ingest pipeline across
// one inbound webhook or site-request invocation.
package reqctx

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/kilang-desa-murni/crm/internal/crmsync/domain"
	"github.com/kilang-desa-murni/crm/pkg/errors"
)

// ErrCyclicCall is raised when an import/refresh is requested for an
// entity that is already being imported/refreshed within this request.
var ErrCyclicCall = errors.New(errors.ErrCodeCyclicCall, "cyclic dependency import detected")

// existsKey is the memoization key for an existence probe: a Kind plus a
// serialized filter (the filter is opaque to this package, the caller
// picks a stable string form for whatever predicate it checked).
type existsKey struct {
	kind   domain.Kind
	filter string
}

// Context is bound to the lifetime of one inbound request. It is not
// safe for concurrent use by goroutines outside the single request it
// was created for; the mutex only guards against incidental concurrent
// access from helper goroutines spawned within the same request.
type Context struct {
	mu sync.Mutex

	Tx *sql.Tx

	exists              map[existsKey]bool
	updated             map[domain.Key]bool
	creationInProgress  map[domain.Key]bool
	updateNeeded        map[domain.Key]bool
}

// New creates a fresh coordination cache bound to the given transaction.
func New(tx *sql.Tx) *Context {
	return &Context{
		Tx:                 tx,
		exists:             make(map[existsKey]bool),
		updated:            make(map[domain.Key]bool),
		creationInProgress: make(map[domain.Key]bool),
		updateNeeded:       make(map[domain.Key]bool),
	}
}

// CheckExists memoizes an existence probe for (kind, filter). probe is
// only invoked on the first call for a given key within this request.
func (c *Context) CheckExists(kind domain.Kind, filter string, probe func() (bool, error)) (bool, error) {
	key := existsKey{kind: kind, filter: filter}

	c.mu.Lock()
	if v, ok := c.exists[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := probe()
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.exists[key] = v
	c.mu.Unlock()
	return v, nil
}

// BeginImportOrRefresh marks (kind, id) as in-progress. It returns
// ErrCyclicCall, wrapping the dependency into update_needed, if the
// same (kind, id) is already being imported or refreshed in this
// request — the caller must substitute a tombstone-default and rely on
// a later refresh once the cycle unwinds.
func (c *Context) BeginImportOrRefresh(kind domain.Kind, id domain.ExternalID) error {
	key := domain.NewKey(kind, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.creationInProgress[key] {
		c.updateNeeded[key] = true
		return fmt.Errorf("%w: %s:%s", ErrCyclicCall, kind, id.String())
	}
	c.creationInProgress[key] = true
	return nil
}

// MarkUpdated records that (kind, id) has been refreshed within this request.
func (c *Context) MarkUpdated(kind domain.Kind, id domain.ExternalID) {
	key := domain.NewKey(kind, id)
	c.mu.Lock()
	c.updated[key] = true
	c.mu.Unlock()
}

// IsUpdated reports whether (kind, id) has already been refreshed.
func (c *Context) IsUpdated(kind domain.Kind, id domain.ExternalID) bool {
	key := domain.NewKey(kind, id)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updated[key]
}

// PendingRefreshes returns the (kind, id) pairs whose import was cut
// short by a cycle and that still need a follow-up refresh, clearing
// the set as it does so.
func (c *Context) PendingRefreshes() []domain.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.Key, 0, len(c.updateNeeded))
	for k := range c.updateNeeded {
		out = append(out, k)
	}
	c.updateNeeded = make(map[domain.Key]bool)
	return out
}

// Reset clears all four mutable collections and drops the transaction. Call on request completion
// regardless of success; the Context itself may then be discarded.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exists = make(map[existsKey]bool)
	c.updated = make(map[domain.Key]bool)
	c.creationInProgress = make(map[domain.Key]bool)
	c.updateNeeded = make(map[domain.Key]bool)
	c.Tx = nil
}

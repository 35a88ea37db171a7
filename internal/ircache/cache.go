// Package ircache keeps compiled manifests in memory so callers share one
// IR per manifest instead of recompiling per request. The cache is
// explicit: callers construct and inject it, load and invalidate by name,
// and may optionally watch a source file for hot reload. There is no
// process-wide singleton.
package ircache

import (
	"fmt"
	"sort"
	"sync"

	"github.com/eventops/manifest/internal/compiler"
	"github.com/eventops/manifest/internal/ir"
)

// CompileFunc compiles manifest source; compiler.CompileToIR satisfies it.
type CompileFunc func(source string) (*ir.IR, []compiler.Diagnostic)

// Cache holds compiled IR snapshots keyed by manifest name. Safe for
// concurrent use. A snapshot handed out by Get is never mutated by later
// loads; running engines keep whatever snapshot they were built with.
type Cache struct {
	compile CompileFunc

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	doc  *ir.IR
	hash string
}

// New builds an empty cache around a compile function.
func New(compile CompileFunc) *Cache {
	return &Cache{
		compile: compile,
		entries: make(map[string]*entry),
	}
}

// Load compiles source and swaps it in under name. On compile failure
// (nil IR) the previous snapshot, if any, stays in place and the
// diagnostics are returned with the error.
func (c *Cache) Load(name, source string) ([]compiler.Diagnostic, error) {
	doc, diags := c.compile(source)
	if doc == nil {
		return diags, fmt.Errorf("ircache: manifest %q failed to compile", name)
	}
	hash, err := ir.ContentHash(doc)
	if err != nil {
		return diags, fmt.Errorf("ircache: hash manifest %q: %w", name, err)
	}

	c.mu.Lock()
	c.entries[name] = &entry{doc: doc, hash: hash}
	c.mu.Unlock()
	return diags, nil
}

// Get returns the current snapshot for a name.
func (c *Cache) Get(name string) (*ir.IR, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return e.doc, true
}

// Hash returns the content hash of the current snapshot for a name.
func (c *Cache) Hash(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	return e.hash, true
}

// Invalidate drops a snapshot. Subsequent Get calls miss until the next
// Load.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Names returns the loaded manifest names, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

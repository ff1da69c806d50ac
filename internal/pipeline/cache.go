package pipeline

import "sync"

// engineerCache maps engineer IDs to their resumable agent session handles,
// so a task keeps its engineer's context across development, review, and
// revision. Entries are dropped on terminal merge or failure. The cache is
// owned by the Manager and never embedded in tasks.
type engineerCache struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newEngineerCache() *engineerCache {
	return &engineerCache{sessions: make(map[string]string)}
}

// Session returns the stored resume handle, or empty for a fresh engineer.
func (c *engineerCache) Session(engineerID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[engineerID]
}

// Store records the session handle from a completed invocation.
func (c *engineerCache) Store(engineerID, session string) {
	if session == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[engineerID] = session
}

// Drop discards an engineer's session on terminal events.
func (c *engineerCache) Drop(engineerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, engineerID)
}

func (c *engineerCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

package claudecode

import (
	"container/list"
	"sync"
)

// sessionKey identifies a reusable upstream session by credential and the
// content of its system prompt, per spec.md §4.F.
type sessionKey struct {
	credentialID    string
	systemPromptSum string // hex sha256
}

type sessionEntry struct {
	key       sessionKey
	sessionID string
}

// sessionCache is a bounded LRU keyed by (credential id, sha256(system
// prompt)), so requests sharing a system prompt on the same credential
// reuse the upstream session id. Grounded on the teacher's
// stream_session.go per-request session shape, generalized into an
// actual bounded cache since the teacher builds a fresh session object
// per call rather than reusing one across calls.
type sessionCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[sessionKey]*list.Element
}

func newSessionCache(capacity int) *sessionCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &sessionCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[sessionKey]*list.Element),
	}
}

func (c *sessionCache) get(key sessionKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*sessionEntry).sessionID, true
}

func (c *sessionCache) put(key sessionKey, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		el.Value.(*sessionEntry).sessionID = sessionID
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&sessionEntry{key: key, sessionID: sessionID})
	c.index[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*sessionEntry).key)
		}
	}
}

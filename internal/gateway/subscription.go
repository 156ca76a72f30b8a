package gateway

import (
	"sync"
	"sync/atomic"
)

// SubscriptionSet is a single client's own thread-safe set of subscribed
// channel ids, adapted from the teacher's connection.go of the same name.
// Used on disconnect to know which channels to unregister from.
type SubscriptionSet struct {
	channels map[string]struct{}
	mu       sync.RWMutex
}

func NewSubscriptionSet() *SubscriptionSet {
	return &SubscriptionSet{channels: make(map[string]struct{})}
}

func (s *SubscriptionSet) Add(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel] = struct{}{}
}

func (s *SubscriptionSet) Remove(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channel)
}

func (s *SubscriptionSet) Has(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *SubscriptionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	return out
}

// SubscriptionIndex is the local channelId -> set<agentId> map spec.md §4.4
// describes: the instance's own record of which agents are subscribed to
// which channels, independent of how many open sockets each agent has.
// Copy-on-write atomic snapshots, adapted from the teacher's connection.go
// SubscriptionIndex (there keyed by *Client instead of by agent id).
type SubscriptionIndex struct {
	subscribers map[string]*atomic.Value // channel -> []string agent ids snapshot
	mu          sync.RWMutex
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{subscribers: make(map[string]*atomic.Value)}
}

// Add registers agentID as a local subscriber of channel. Returns true if
// this is the first local subscriber for channel on this instance.
func (idx *SubscriptionIndex) Add(channel, agentID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	val := idx.subscribers[channel]
	if val == nil {
		val = &atomic.Value{}
		idx.subscribers[channel] = val
	}

	var current []string
	if v := val.Load(); v != nil {
		current = v.([]string)
	}
	for _, existing := range current {
		if existing == agentID {
			return false
		}
	}

	next := make([]string, len(current)+1)
	copy(next, current)
	next[len(current)] = agentID
	val.Store(next)
	return len(current) == 0
}

// Remove unregisters agentID from channel. Returns true if channel has no
// remaining local subscribers on this instance.
func (idx *SubscriptionIndex) Remove(channel, agentID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	val, ok := idx.subscribers[channel]
	if !ok {
		return true
	}
	v := val.Load()
	if v == nil {
		return true
	}
	current := v.([]string)
	for i, existing := range current {
		if existing == agentID {
			next := make([]string, len(current)-1)
			copy(next, current[:i])
			copy(next[i:], current[i+1:])
			if len(next) == 0 {
				delete(idx.subscribers, channel)
				return true
			}
			val.Store(next)
			return false
		}
	}
	return len(current) == 0
}

// Get returns the immutable snapshot of agent ids locally subscribed to
// channel. Lock-free on the hot path once the atomic.Value exists.
func (idx *SubscriptionIndex) Get(channel string) []string {
	idx.mu.RLock()
	val, ok := idx.subscribers[channel]
	idx.mu.RUnlock()
	if !ok {
		return nil
	}
	v := val.Load()
	if v == nil {
		return nil
	}
	return v.([]string)
}

func (idx *SubscriptionIndex) Count(channel string) int {
	return len(idx.Get(channel))
}

// Channels returns every channel id with at least one local subscriber,
// for the presence heartbeat's periodic sweep.
func (idx *SubscriptionIndex) Channels() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]string, 0, len(idx.subscribers))
	for ch := range idx.subscribers {
		out = append(out, ch)
	}
	return out
}

// SocketRegistry maps agentId -> the set of open Client sockets that agent
// currently has on this instance. An agent may hold more than one
// concurrent connection; fan-out delivers to every socket.
type SocketRegistry struct {
	mu      sync.RWMutex
	sockets map[string]map[*Client]struct{}
}

func NewSocketRegistry() *SocketRegistry {
	return &SocketRegistry{sockets: make(map[string]map[*Client]struct{})}
}

func (r *SocketRegistry) Add(agentID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sockets[agentID]
	if !ok {
		set = make(map[*Client]struct{})
		r.sockets[agentID] = set
	}
	set[c] = struct{}{}
}

func (r *SocketRegistry) Remove(agentID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sockets[agentID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.sockets, agentID)
	}
}

func (r *SocketRegistry) Get(agentID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sockets[agentID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

package channels

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// threadEntry records who answers in a bot-created thread. An empty agent
// means the conversation was not explicitly routed; follow-ups go through
// normal routing.
type threadEntry struct {
	Agent     string `json:"agent,omitempty"`
	CreatedAt int64  `json:"createdAt"` // unix ms
}

// ThreadRegistry is the persisted set of conversation threads the bot
// created, each with the agent that originated it. Follow-up messages in
// a registered thread are accepted without a mention or channel allowlist
// hit and pre-routed to the originating agent.
type ThreadRegistry struct {
	path string

	mu      sync.Mutex
	threads map[string]threadEntry
}

// NewThreadRegistry loads the registry from path; missing or corrupt
// files start empty.
func NewThreadRegistry(path string) *ThreadRegistry {
	r := &ThreadRegistry{path: path, threads: map[string]threadEntry{}}
	if data, err := os.ReadFile(path); err == nil {
		var threads map[string]threadEntry
		if json.Unmarshal(data, &threads) == nil && threads != nil {
			r.threads = threads
		}
	}
	return r
}

// Register records a thread the bot owns and the agent it belongs to.
func (r *ThreadRegistry) Register(threadID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[threadID]; ok {
		return
	}
	r.threads[threadID] = threadEntry{Agent: agentID, CreatedAt: time.Now().UnixMilli()}
	r.save()
}

// Owns reports whether the bot created the thread.
func (r *ThreadRegistry) Owns(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.threads[threadID]
	return ok
}

// Agent returns the agent a registered thread belongs to. The second
// return is ownership; the agent may be empty for unrouted conversations.
func (r *ThreadRegistry) Agent(threadID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.threads[threadID]
	return e.Agent, ok
}

func (r *ThreadRegistry) save() {
	data, err := json.MarshalIndent(r.threads, "", "  ")
	if err != nil {
		return
	}
	tmp := r.path + ".tmp"
	if os.WriteFile(tmp, data, 0o644) != nil {
		return
	}
	_ = os.Rename(tmp, r.path)
}

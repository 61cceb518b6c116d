// Package registry tracks the single in-flight transfer allowed per operator
// identity. It owns its locking; callers never synchronise around it.
package registry

import (
	"sync"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

// Registry maps an identity to the cancel token of its running task.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*copier.Token
}

func New() *Registry {
	return &Registry{tasks: make(map[string]*copier.Token)}
}

// TryAcquire registers a fresh token for identity. It returns false, and
// registers nothing, when identity already has a task. There is no queue.
func (r *Registry) TryAcquire(identity string) (*copier.Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.tasks[identity]; busy {
		logger.Log.Info("Rejected concurrent task", "identity", identity)
		return nil, false
	}
	tok := copier.NewToken()
	r.tasks[identity] = tok
	return tok, true
}

// Cancel signals and removes the task of identity, reporting whether one
// existed.
func (r *Registry) Cancel(identity string) bool {
	r.mu.Lock()
	tok, ok := r.tasks[identity]
	if ok {
		delete(r.tasks, identity)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	tok.Cancel()
	logger.Log.Info("Task cancelled", "identity", identity)
	return true
}

// Release unconditionally removes the entry for identity.
func (r *Registry) Release(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, identity)
}

// ReleaseToken removes the entry for identity only while it still holds tok,
// so a task that finishes after being cancelled cannot evict its successor.
func (r *Registry) ReleaseToken(identity string, tok *copier.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tasks[identity]; ok && cur == tok {
		delete(r.tasks, identity)
	}
}

// Active reports whether identity has a running task.
func (r *Registry) Active(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[identity]
	return ok
}

// Len returns the number of running tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

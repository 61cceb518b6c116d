package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/The-Promised-Neverland/relay/internal/copier"
	"github.com/The-Promised-Neverland/relay/internal/models"
)

// Task is one running transfer. At most one exists per identity.
type Task struct {
	Identity  string
	Reference models.Reference
	Token     *copier.Token
	StartedAt time.Time

	transferred atomic.Int64
	total       atomic.Int64

	mu        sync.Mutex
	phase     models.Phase
	name      string
	artifacts []string
}

// TaskInfo is a read-only snapshot of a Task.
type TaskInfo struct {
	Identity    string       `json:"identity"`
	Reference   string       `json:"reference"`
	Name        string       `json:"name,omitempty"`
	Phase       models.Phase `json:"phase"`
	Transferred int64        `json:"transferred"`
	Total       int64        `json:"total"`
	StartedAt   time.Time    `json:"started_at"`
}

func newTask(identity string, ref models.Reference, tok *copier.Token, now time.Time) *Task {
	return &Task{
		Identity:  identity,
		Reference: ref,
		Token:     tok,
		StartedAt: now,
		phase:     models.PhaseIdle,
	}
}

func (t *Task) setPhase(p models.Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
	t.transferred.Store(0)
}

func (t *Task) Phase() models.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Task) setName(name string) {
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// own registers path as an artifact deleted when the task ends.
func (t *Task) own(path string) {
	t.mu.Lock()
	t.artifacts = append(t.artifacts, path)
	t.mu.Unlock()
}

func (t *Task) ownedArtifacts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.artifacts...)
}

// counting records progress on the task before forwarding it.
func (t *Task) counting(next copier.Reporter) copier.Reporter {
	return copier.ReporterFunc(func(written, total int64) {
		t.transferred.Store(written)
		t.total.Store(total)
		if next != nil {
			next.Report(written, total)
		}
	})
}

func (t *Task) Info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskInfo{
		Identity:    t.Identity,
		Reference:   t.Reference.String(),
		Name:        t.name,
		Phase:       t.phase,
		Transferred: t.transferred.Load(),
		Total:       t.total.Load(),
		StartedAt:   t.StartedAt,
	}
}

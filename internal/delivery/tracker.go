package delivery

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diegod088/bot-bens11-sub000/internal/metrics"
)

// Task is an in-flight delivery.
type Task struct {
	ID        uuid.UUID
	UserID    int64
	StartedAt time.Time
}

// Tracker ensures at most one task runs per user.
// thread-safe
type Tracker struct {
	mu     sync.Mutex
	active map[int64]*Task
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{active: make(map[int64]*Task)}
}

// TryStart registers a task for userID. It returns false when the user
// already has one in flight; otherwise done must be called when finished.
func (t *Tracker) TryStart(userID int64) (task *Task, done func(), ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, busy := t.active[userID]; busy {
		return nil, nil, false
	}

	task = &Task{ID: uuid.New(), UserID: userID, StartedAt: time.Now()}
	t.active[userID] = task
	metrics.InFlightTasks.Inc()

	var once sync.Once
	return task, func() {
		once.Do(func() {
			t.mu.Lock()
			if cur, ok := t.active[userID]; ok && cur.ID == task.ID {
				delete(t.active, userID)
			}
			t.mu.Unlock()
			metrics.InFlightTasks.Dec()
		})
	}, true
}

// Current returns the user's in-flight task or nil.
func (t *Tracker) Current(userID int64) *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active[userID]
}

// Active reports the number of in-flight tasks.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

package api

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/moodmatch/internal/picker"
	"github.com/fpang/moodmatch/internal/workflow"
)

// MaxSessionsPerUser bounds the sessions one user may hold. Creating one
// more evicts that user's least recently used session.
const MaxSessionsPerUser = 5

// ErrSessionNotFound is returned for unknown, expired or foreign sessions.
var ErrSessionNotFound = errors.New("session not found")

// uuidRegex matches UUID v4 format: 8-4-4-4-12 lowercase hex with dashes.
var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Session is one post-creation workflow owned by a user.
type Session struct {
	ID       string
	Workflow *workflow.Workflow
	Picker   *picker.Staged

	ownerID  string
	lastUsed time.Time
}

// WorkflowFactory builds the workflow for a new session. p supplies the
// photos clients upload.
type WorkflowFactory func(user workflow.User, p workflow.Picker) *workflow.Workflow

// Registry holds the live sessions of one process.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idle        time.Duration
	newWorkflow WorkflowFactory
	now         func() time.Time
}

// NewRegistry returns a registry evicting sessions idle for longer than idle.
func NewRegistry(idle time.Duration, factory WorkflowFactory) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		idle:        idle,
		newWorkflow: factory,
		now:         time.Now,
	}
}

// Create starts a session for user.
func (r *Registry) Create(user workflow.User) *Session {
	staged := &picker.Staged{}
	sess := &Session{
		ID:       uuid.NewString(),
		Workflow: r.newWorkflow(user, staged),
		Picker:   staged,
		ownerID:  user.ID,
	}

	r.mu.Lock()
	evicted := r.sweepLocked()
	sess.lastUsed = r.now()
	var owned []*Session
	for _, s := range r.sessions {
		if s.ownerID == user.ID {
			owned = append(owned, s)
		}
	}
	if len(owned) >= MaxSessionsPerUser {
		sort.Slice(owned, func(i, j int) bool { return owned[i].lastUsed.Before(owned[j].lastUsed) })
		for _, s := range owned[:len(owned)-MaxSessionsPerUser+1] {
			delete(r.sessions, s.ID)
			evicted = append(evicted, s)
		}
	}
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	discard(evicted)
	log.Info().Str("sessionId", sess.ID).Str("userId", user.ID).Msg("Session created")
	return sess
}

// Get returns the session id owned by userID and marks it used.
func (r *Registry) Get(id, userID string) (*Session, error) {
	if !uuidRegex.MatchString(id) {
		return nil, ErrSessionNotFound
	}
	r.mu.Lock()
	evicted := r.sweepLocked()
	sess, ok := r.sessions[id]
	if ok && sess.ownerID == userID {
		sess.lastUsed = r.now()
	}
	r.mu.Unlock()

	discard(evicted)
	if !ok || sess.ownerID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete discards and removes a session.
func (r *Registry) Delete(id, userID string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok && sess.ownerID == userID {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok || sess.ownerID != userID {
		return ErrSessionNotFound
	}
	discard([]*Session{sess})
	return nil
}

// Sweep evicts idle sessions and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	evicted := r.sweepLocked()
	r.mu.Unlock()
	discard(evicted)
	return len(evicted)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps every interval until ctx is done. Lambda does not need it;
// Get and Create sweep lazily.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("evicted", n).Msg("Idle sessions evicted")
			}
		}
	}
}

// Close discards every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	discard(all)
}

func (r *Registry) sweepLocked() []*Session {
	cutoff := r.now().Add(-r.idle)
	var evicted []*Session
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	return evicted
}

// discard runs outside the registry lock; Discard takes the workflow lock.
func discard(sessions []*Session) {
	for _, s := range sessions {
		s.Workflow.Discard()
		log.Debug().Str("sessionId", s.ID).Msg("Session discarded")
	}
}

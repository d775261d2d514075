package biometric

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrEnrollmentUnknown is returned until the shell reports its enrolled set.
	ErrEnrollmentUnknown = errors.New("biometric enrollment not reported")
)

// PendingPrompt is a platform prompt waiting for the shell to answer.
type PendingPrompt struct {
	ID        string    `json:"id"`
	Class     string    `json:"class"`
	Factor    string    `json:"factor"`
	CreatedAt time.Time `json:"created_at"`
}

// Bridge is a Platform whose sensor lives in a native shell. The shell reports
// its capability and enrollment, lists pending prompts and resolves them.
type Bridge struct {
	mu         sync.Mutex
	capability Capability
	enrollment string
	pending    map[string]*bridgePrompt
	now        func() time.Time
}

type bridgePrompt struct {
	info   PendingPrompt
	result chan PromptResult
}

func NewBridge(initial Capability) *Bridge {
	return &Bridge{
		capability: initial,
		pending:    make(map[string]*bridgePrompt),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetCapability records what the shell's platform reported.
func (b *Bridge) SetCapability(capability Capability, enrollmentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.capability = capability
	b.enrollment = enrollmentID
}

func (b *Bridge) Capability(_ context.Context) (Capability, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capability, nil
}

func (b *Bridge) EnrollmentID(_ context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enrollment == "" {
		return "", ErrEnrollmentUnknown
	}
	return b.enrollment, nil
}

func (b *Bridge) Prompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	p := &bridgePrompt{
		info: PendingPrompt{
			ID:        uuid.NewString(),
			Class:     string(req.Class),
			Factor:    req.Factor.String(),
			CreatedAt: b.now(),
		},
		result: make(chan PromptResult, 1),
	}
	b.mu.Lock()
	b.pending[p.info.ID] = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, p.info.ID)
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return PromptCancelled, ctx.Err()
	case r := <-p.result:
		return r, nil
	}
}

// Pending lists unanswered prompts, oldest first.
func (b *Bridge) Pending() []PendingPrompt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PendingPrompt, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Resolve answers a pending prompt. Each prompt accepts exactly one answer.
func (b *Bridge) Resolve(id string, result PromptResult) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return ErrPromptNotFound
	}
	p.result <- result
	return nil
}

package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yukikurage/tasker/internal/prefs"
)

const (
	prefWeekAnchor = "week_anchor"
	prefExpanded   = "expanded"
)

// Preferences is a user's persisted view state for one scope.
type Preferences struct {
	WeekAnchor string          `json:"week_anchor"`
	Expanded   map[string]bool `json:"expanded"`
}

type pendingPrefs struct {
	value Preferences
	timer *time.Timer
}

// PreferenceKeeper reads preferences once and writes them debounced.
type PreferenceKeeper struct {
	store prefs.Store
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingPrefs
}

func NewPreferenceKeeper(store prefs.Store, delay time.Duration) *PreferenceKeeper {
	return &PreferenceKeeper{
		store:   store,
		delay:   delay,
		pending: make(map[string]*pendingPrefs),
	}
}

// Load returns the stored preferences, or the not yet written ones.
func (k *PreferenceKeeper) Load(ctx context.Context, userID string, scope Scope) (Preferences, error) {
	ns := prefs.Namespace(userID, scope.Key())

	k.mu.Lock()
	if p, ok := k.pending[ns]; ok {
		k.mu.Unlock()
		return p.value, nil
	}
	k.mu.Unlock()

	out := Preferences{Expanded: map[string]bool{}}
	anchor, ok, err := k.store.Get(ctx, ns, prefWeekAnchor)
	if err != nil {
		return out, err
	}
	if ok {
		out.WeekAnchor = anchor
	}
	raw, ok, err := k.store.Get(ctx, ns, prefExpanded)
	if err != nil {
		return out, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &out.Expanded); err != nil {
			log.Printf("[calendar] Ignoring unreadable expanded days for %s: %v", ns, err)
			out.Expanded = map[string]bool{}
		}
	}
	return out, nil
}

// Save schedules a write. Saves within the delay collapse into one write of
// the latest value.
func (k *PreferenceKeeper) Save(userID string, scope Scope, p Preferences) {
	ns := prefs.Namespace(userID, scope.Key())

	k.mu.Lock()
	defer k.mu.Unlock()
	if cur, ok := k.pending[ns]; ok {
		cur.value = p
		cur.timer.Reset(k.delay)
		return
	}
	k.pending[ns] = &pendingPrefs{
		value: p,
		timer: time.AfterFunc(k.delay, func() { k.flush(context.Background(), ns) }),
	}
}

// Flush writes every pending value now.
func (k *PreferenceKeeper) Flush(ctx context.Context) error {
	k.mu.Lock()
	namespaces := make([]string, 0, len(k.pending))
	for ns, p := range k.pending {
		p.timer.Stop()
		namespaces = append(namespaces, ns)
	}
	k.mu.Unlock()

	var firstErr error
	for _, ns := range namespaces {
		if err := k.flush(ctx, ns); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (k *PreferenceKeeper) flush(ctx context.Context, ns string) error {
	k.mu.Lock()
	p, ok := k.pending[ns]
	if !ok {
		k.mu.Unlock()
		return nil
	}
	delete(k.pending, ns)
	value := p.value
	k.mu.Unlock()

	err := k.write(ctx, ns, value)
	if err != nil {
		log.Printf("[calendar] Failed to save preferences for %s: %v", ns, err)
	}
	return err
}

func (k *PreferenceKeeper) write(ctx context.Context, ns string, p Preferences) error {
	if err := k.store.Set(ctx, ns, prefWeekAnchor, p.WeekAnchor); err != nil {
		return err
	}
	expanded := p.Expanded
	if expanded == nil {
		expanded = map[string]bool{}
	}
	raw, err := json.Marshal(expanded)
	if err != nil {
		return fmt.Errorf("failed to encode expanded days: %w", err)
	}
	return k.store.Set(ctx, ns, prefExpanded, string(raw))
}

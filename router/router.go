package router

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/taskflow-go/taskflow/internal/core"
)

// errAllFailedSentinel is the root cause wrapped into every ErrAllFailed
// instance, so callers can test with errors.Is(err, router.ErrAllFailed)
// regardless of which subscriber messages got appended.
var errAllFailedSentinel = errors.New("all subscribers failed")

// ErrAllFailed is returned by Route when every matching subscriber's
// callback returned an error (spec.md §4.11 step 4).
var ErrAllFailed = core.NewError(core.KindHandlerError, errAllFailedSentinel)

// Router is a pattern-indexed subscription registry and dispatcher (C11).
// Subscriptions are stored both in a segment trie (for fast route()
// matching) and in a flat map keyed by id (for O(1) unsubscribe, since a
// trie removal needs the original compiled segments, which the flat map
// retains).
type Router struct {
	mu      sync.RWMutex
	root    *trieNode
	byID    map[uint64]*Subscription
	nextID  uint64
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		root: newTrieNode(),
		byID: make(map[uint64]*Subscription),
	}
}

// Subscribe registers callback against pattern, optionally gated by
// filter, with the given dispatch priority (spec.md §4.11 subscribe).
// priority MUST be in [0,10]; pattern MUST be non-empty and well-formed;
// callback MUST be non-nil.
func (r *Router) Subscribe(patternStr string, callback Callback, filter Filter, priority int) (uint64, error) {
	if callback == nil {
		return 0, core.NewError(core.KindInvalidArgument, errNilCallback)
	}
	if priority < 0 || priority > 10 {
		return 0, core.NewError(core.KindInvalidArgument, errPriorityRange)
	}
	p, err := compilePattern(patternStr)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := atomic.AddUint64(&r.nextID, 1)
	sub := &Subscription{id: id, pattern: p, callback: callback, filter: filter, priority: priority}
	r.root.insert(p.segments, sub)
	r.byID[id] = sub
	return id, nil
}

// Unsubscribe removes the subscription identified by id. Idempotent:
// removing an id that is absent (never issued, or already removed)
// returns ErrSubscriptionGone (spec.md §3.3 "unsubscribe is idempotent;
// second call returns not_found").
func (r *Router) Unsubscribe(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[id]
	if !ok {
		return core.ErrSubscriptionGone
	}
	r.root.remove(sub.pattern.segments, sub)
	delete(r.byID, id)
	return nil
}

// Route dispatches msg to every subscription whose pattern matches
// msg.Topic and whose filter (if any) accepts it, in descending priority
// order; subscriptions tied on priority fire in unspecified order
// (spec.md §4.11 route). Returns ErrNoSubscribers if nothing matched
// after filtering, ErrAllFailed if every matching callback returned an
// error, and nil if at least one succeeded.
func (r *Router) Route(msg Message) error {
	segs := splitTopic(msg.Topic)

	r.mu.RLock()
	matched := r.root.collectMatches(segs, nil)
	r.mu.RUnlock()

	candidates := make([]*Subscription, 0, len(matched))
	for _, sub := range matched {
		if sub.filter == nil || sub.filter(msg) {
			candidates = append(candidates, sub)
		}
	}
	if len(candidates) == 0 {
		return core.ErrNoSubscribers
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority > candidates[j].priority
	})

	var failures []string
	anySucceeded := false
	for _, sub := range candidates {
		if err := sub.callback(msg); err != nil {
			failures = append(failures, fmt.Sprintf("sub %d: %v", sub.id, err))
			continue
		}
		anySucceeded = true
	}
	if anySucceeded {
		return nil
	}
	return core.NewError(core.KindHandlerError, fmt.Errorf("%w: %v", errAllFailedSentinel, failures))
}

// Count returns the number of currently active subscriptions.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

package router

import "errors"

var (
	errEmptyPattern    = errors.New("router: pattern must not be empty")
	errEmptySegment    = errors.New("router: pattern segments must not be empty")
	errPartialHash     = errors.New("router: '#' must not be mixed with literal text in a segment")
	errHashNotTrailing = errors.New("router: '#' is only meaningful as the pattern's last segment")
	errNilCallback     = errors.New("router: callback must not be nil")
	errPriorityRange   = errors.New("router: priority must be in [0, 10]")
)

// Message is one published event: a dot-segment topic plus an opaque
// payload handed to matching subscribers.
type Message struct {
	Topic   string
	Payload any
}

// Callback receives a routed Message. Returning a non-nil error marks
// this subscriber's dispatch as failed for the purposes of route()'s
// all_failed aggregation (spec.md §4.11 step 4).
type Callback func(msg Message) error

// Filter is an optional predicate; when non-nil and it returns false for
// msg, the subscription is excluded from dispatch entirely (spec.md
// §4.11 step 2).
type Filter func(msg Message) bool

// Subscription is one registered topic-pattern listener (spec.md §3.3).
type Subscription struct {
	id       uint64
	pattern  *pattern
	callback Callback
	filter   Filter
	priority int
}

// ID returns the subscription's unique, never-reused handle.
func (s *Subscription) ID() uint64 { return s.id }

// Pattern returns the raw pattern string this subscription was created
// with.
func (s *Subscription) Pattern() string { return s.pattern.raw }

// Priority returns the subscription's dispatch priority.
func (s *Subscription) Priority() int { return s.priority }

// Package router implements topic-based publish/route dispatch (spec.md
// C11): dot-segment patterns with single-segment (*) and trailing
// multi-segment (#) wildcards, matched against published topics via a
// small trie keyed by segment, so route() never re-splits or re-walks
// every registered pattern on every call.
package router

import (
	"strings"

	"github.com/taskflow-go/taskflow/internal/core"
)

const (
	segStar = "*"
	segHash = "#"
)

// pattern is a compiled, segment-split subscription pattern.
type pattern struct {
	raw      string
	segments []string
}

// compilePattern splits p on '.' and validates every segment is non-empty
// and that '#' only ever appears as a whole, trailing segment (spec.md
// §4.11).
func compilePattern(p string) (*pattern, error) {
	if p == "" {
		return nil, core.NewError(core.KindInvalidArgument, errEmptyPattern)
	}
	segs := strings.Split(p, ".")
	for i, s := range segs {
		if s == "" {
			return nil, core.NewError(core.KindInvalidArgument, errEmptySegment)
		}
		if strings.Contains(s, segHash) && s != segHash {
			return nil, core.NewError(core.KindInvalidArgument, errPartialHash)
		}
		if s == segHash && i != len(segs)-1 {
			// '#' only matches as a trailing wildcard; mid-pattern it can
			// never be satisfied the way spec.md §4.11 defines it, so
			// reject rather than accept a pattern that can never fire.
			return nil, core.NewError(core.KindInvalidArgument, errHashNotTrailing)
		}
	}
	return &pattern{raw: p, segments: segs}, nil
}

// splitTopic splits a published topic on '.'; topics are not validated
// beyond non-emptiness (callers publish, they do not subscribe).
func splitTopic(topic string) []string {
	return strings.Split(topic, ".")
}

// matches reports whether topicSegs satisfies p, per spec.md §4.11: '*'
// consumes exactly one segment, '#' (only legal trailing) consumes zero
// or more remaining segments. Route() itself never calls this directly —
// it walks the trie instead — but it is the semantics the trie encodes,
// and is kept for direct unit testing of pattern behavior.
func (p *pattern) matches(topicSegs []string) bool {
	pat := p.segments
	for i := 0; i < len(pat); i++ {
		seg := pat[i]
		if seg == segHash {
			return true
		}
		if len(topicSegs) == 0 {
			return false
		}
		if seg != segStar && seg != topicSegs[0] {
			return false
		}
		topicSegs = topicSegs[1:]
	}
	return len(topicSegs) == 0
}

// trieNode is one segment level of the pattern trie. literal holds
// exact-segment children; star holds the '*' child, if any subscription
// used it at this depth; subsHere holds subscriptions whose pattern ends
// exactly at this node; hashSubs holds subscriptions whose pattern placed
// a trailing '#' at this node (matching this depth and everything below
// it).
type trieNode struct {
	literal  map[string]*trieNode
	star     *trieNode
	subsHere []*Subscription
	hashSubs []*Subscription
}

func newTrieNode() *trieNode {
	return &trieNode{literal: make(map[string]*trieNode)}
}

// insert threads sub into the trie along its compiled pattern's segments.
func (n *trieNode) insert(segs []string, sub *Subscription) {
	cur := n
	for _, seg := range segs {
		if seg == segHash {
			cur.hashSubs = append(cur.hashSubs, sub)
			return
		}
		var next *trieNode
		if seg == segStar {
			if cur.star == nil {
				cur.star = newTrieNode()
			}
			next = cur.star
		} else {
			child, ok := cur.literal[seg]
			if !ok {
				child = newTrieNode()
				cur.literal[seg] = child
			}
			next = child
		}
		cur = next
	}
	cur.subsHere = append(cur.subsHere, sub)
}

// remove deletes sub (matched by identity) from the node reached by segs.
// Empty trie branches are left in place; they hold no subscriptions and
// cost only a map lookup on a future route().
func (n *trieNode) remove(segs []string, sub *Subscription) {
	cur := n
	for _, seg := range segs {
		if seg == segHash {
			cur.hashSubs = removeSub(cur.hashSubs, sub)
			return
		}
		if seg == segStar {
			if cur.star == nil {
				return
			}
			cur = cur.star
			continue
		}
		child, ok := cur.literal[seg]
		if !ok {
			return
		}
		cur = child
	}
	cur.subsHere = removeSub(cur.subsHere, sub)
}

func removeSub(subs []*Subscription, target *Subscription) []*Subscription {
	out := subs[:0]
	for _, s := range subs {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// collectMatches walks the trie against topicSegs, appending every
// subscription whose pattern matches into out.
func (n *trieNode) collectMatches(topicSegs []string, out []*Subscription) []*Subscription {
	out = append(out, n.hashSubs...)
	if len(topicSegs) == 0 {
		return append(out, n.subsHere...)
	}
	head, rest := topicSegs[0], topicSegs[1:]
	if child, ok := n.literal[head]; ok {
		out = child.collectMatches(rest, out)
	}
	if n.star != nil {
		out = n.star.collectMatches(rest, out)
	}
	return out
}

package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nexuswave/wacore/binarynode"
)

// EventKeys returns the selector cascade a decoded frame is dispatched
// through, most specific first: CB:tag,attr:value,childTag →
// CB:tag,attr:value → CB:tag,attr → CB:tag,,childTag → CB:tag. When a node
// carries more than one attribute, the lexicographically smallest key is
// the "primary" one the attr-based selectors key off of, so dispatch is
// deterministic regardless of Go's unordered map iteration.
func EventKeys(n binarynode.Node) []string {
	var attrKey, attrVal string
	if len(n.Attrs) > 0 {
		keys := make([]string, 0, len(n.Attrs))
		for k := range n.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		attrKey = keys[0]
		attrVal = n.Attrs[attrKey]
	}

	var childTag string
	if len(n.Children) > 0 {
		childTag = n.Children[0].Tag
	}

	var out []string
	if attrKey != "" {
		if childTag != "" {
			out = append(out, fmt.Sprintf("CB:%s,%s:%s,%s", n.Tag, attrKey, attrVal, childTag))
		}
		out = append(out, fmt.Sprintf("CB:%s,%s:%s", n.Tag, attrKey, attrVal))
		out = append(out, fmt.Sprintf("CB:%s,%s", n.Tag, attrKey))
	}
	if childTag != "" {
		out = append(out, fmt.Sprintf("CB:%s,,%s", n.Tag, childTag))
	}
	out = append(out, fmt.Sprintf("CB:%s", n.Tag))
	return out
}

// Router dispatches decoded frames by selector specificity and by
// message-id for request/reply matching. Any number of handlers may be
// registered per key; they are called in registration order.
type Router struct {
	mu       sync.Mutex
	handlers map[string][]func(binarynode.Node)
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string][]func(binarynode.Node))}
}

// On subscribes fn to every frame matching key (a "CB:..." selector or a
// "TAG:{id}" reply key).
func (r *Router) On(key string, fn func(binarynode.Node)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key] = append(r.handlers[key], fn)
}

// Dispatch routes n to every handler registered under any of its
// cascade's keys, plus its TAG:{id} key if it carries an id attribute.
func (r *Router) Dispatch(n binarynode.Node) {
	keys := EventKeys(n)
	if id, ok := n.Attr("id"); ok {
		keys = append(keys, "TAG:"+id)
	}

	r.mu.Lock()
	var toCall []func(binarynode.Node)
	for _, k := range keys {
		toCall = append(toCall, r.handlers[k]...)
	}
	r.mu.Unlock()

	for _, fn := range toCall {
		fn(n)
	}
}

package wampsession

import (
	"sync"

	"github.com/wampio/wampio/pkg/wampmsg"
)

// ReplyFunc is invoked exactly once with the reply to an outbound request,
// or with a synthetic Canceled ErrorMsg at session close.
type ReplyFunc func(reply wampmsg.Message)

type pendingEntry struct {
	requestType wampmsg.Type
	fn          ReplyFunc
}

// pendingTable is the session's outstanding-outbound-request map: our
// request id -> continuation. Touched by the session's own goroutines
// only; the mutex keeps insert/resolve/drain mutually exclusive.
type pendingTable struct {
	mu      sync.Mutex
	entries map[int64]pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[int64]pendingEntry)}
}

// insert registers fn against requestID before the request frame is handed
// to the transport, so a reply can never arrive before the entry exists.
func (t *pendingTable) insert(requestID int64, requestType wampmsg.Type, fn ReplyFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[requestID] = pendingEntry{requestType: requestType, fn: fn}
}

// resolve removes and returns the continuation for requestID, if any.
func (t *pendingTable) resolve(requestID int64) (ReplyFunc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	if ok {
		delete(t.entries, requestID)
	}
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// drain removes every pending continuation and fires each with a synthetic
// Canceled error, keyed to its own request id and type.
func (t *pendingTable) drain() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[int64]pendingEntry)
	t.mu.Unlock()
	for id, e := range entries {
		e.fn(syntheticCanceled(e.requestType, id))
	}
}

// syntheticCanceled builds the wamp.error.canceled reply delivered to
// every pending continuation at CLOSED.
func syntheticCanceled(requestType wampmsg.Type, requestID int64) wampmsg.ErrorMsg {
	return wampmsg.ErrorMsg{
		RequestType: requestType,
		Request:     requestID,
		Error:       wampmsg.ErrCanceled,
	}
}

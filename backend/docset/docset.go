// Package docset implements §4.4: a DocSet mapping docId to the latest
// local document, and a Connection multiplexing the sync protocol for
// every (peer, docId) pair over one transport.Socket.
package docset

import (
	"sync"

	"crdtweave/backend/frontend"
)

// DocSet maps docId to the local document handle, guarded by a mutex per
// the teacher's small-struct-plus-mutex idiom (RoutingTable, View, ...).
type DocSet struct {
	mu   sync.Mutex
	docs map[string]*frontend.Doc
}

// New constructs an empty DocSet.
func New() *DocSet {
	return &DocSet{docs: make(map[string]*frontend.Doc)}
}

// Get returns the document at docId, if any.
func (s *DocSet) Get(docId string) (*frontend.Doc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[docId]
	return d, ok
}

// Put registers or replaces the document at docId.
func (s *DocSet) Put(docId string, doc *frontend.Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[docId] = doc
}

// DocIds returns every known docId, in no particular order.
func (s *DocSet) DocIds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.docs))
	for id := range s.docs {
		out = append(out, id)
	}
	return out
}

package batch

import (
	"sync"

	"github.com/grape4ever/thesis-archiver/internal/classify"
)

// Entry is one deferred document waiting for its student's archive.
type Entry struct {
	Path   string
	Record classify.Record
}

// Group is every deferred document seen for one student, in arrival
// order. The first entry's record names the archive, so order matters.
type Group struct {
	StudentID string
	Entries   []Entry
}

// Batcher accumulates deferred-type documents per student. It is filled
// incrementally while a run classifies documents and drained exactly once
// afterwards; compressing a partially-observed group would bake the wrong
// first-seen record into the archive name.
type Batcher struct {
	mu     sync.Mutex
	groups map[string][]Entry
	order  []string
}

func NewBatcher() *Batcher {
	return &Batcher{groups: map[string][]Entry{}}
}

// Add files the document under its student id.
func (b *Batcher) Add(studentID, path string, rec classify.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, seen := b.groups[studentID]; !seen {
		b.order = append(b.order, studentID)
	}
	b.groups[studentID] = append(b.groups[studentID], Entry{Path: path, Record: rec})
}

// Len returns the number of students with pending documents.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.groups)
}

// Drain returns all groups in first-seen student order and clears the
// batcher. A second drain yields nothing.
func (b *Batcher) Drain() []Group {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Group, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, Group{StudentID: id, Entries: b.groups[id]})
	}
	b.groups = map[string][]Entry{}
	b.order = nil
	return out
}

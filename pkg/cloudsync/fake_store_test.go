package cloudsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// fakeStore is an in-memory DocumentStore with failure injection.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]map[string]map[string]map[string]any // user -> collection -> id -> data
	commits []commitCall
	// failCommit, when set, decides the error of the n-th (1-based) commit call.
	failCommit func(n int, writes []Write) error
	pingErr    error
	pingDelay  time.Duration
}

type commitCall struct {
	at     time.Time
	writes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]map[string]map[string]map[string]any)}
}

func (s *fakeStore) Commit(ctx context.Context, userID string, writes []Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commits = append(s.commits, commitCall{at: time.Now(), writes: len(writes)})
	if s.failCommit != nil {
		if err := s.failCommit(len(s.commits), writes); err != nil {
			return err
		}
	}

	for _, w := range writes {
		coll := s.collection(userID, w.Collection)
		if w.Delete {
			delete(coll, w.DocID)
			continue
		}
		coll[w.DocID] = w.Data
	}
	return nil
}

func (s *fakeStore) collection(userID, collection string) map[string]map[string]any {
	user, ok := s.docs[userID]
	if !ok {
		user = make(map[string]map[string]map[string]any)
		s.docs[userID] = user
	}
	coll, ok := user[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		user[collection] = coll
	}
	return coll
}

func (s *fakeStore) Get(ctx context.Context, userID, collection, docID string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.collection(userID, collection)[docID]
	if !ok {
		return nil, NewStoreError("get", CodeNotFound, nil)
	}
	return &Document{ID: docID, Data: data}, nil
}

func (s *fakeStore) Query(ctx context.Context, userID, collection string, filter Filter) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []Document
	for id, data := range s.collection(userID, collection) {
		docs = append(docs, Document{ID: id, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *fakeStore) DeleteByPrefix(ctx context.Context, userID, collection, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	coll := s.collection(userID, collection)
	for id := range coll {
		if strings.HasPrefix(id, prefix) {
			delete(coll, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteCollection(ctx context.Context, userID, collection string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.collection(userID, collection)))
	delete(s.docs[userID], collection)
	return n, nil
}

func (s *fakeStore) DeleteUser(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, coll := range s.docs[userID] {
		n += int64(len(coll))
	}
	delete(s.docs, userID)
	return n, nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	err, delay := s.pingErr, s.pingDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *fakeStore) setPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *fakeStore) count(userID, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collection(userID, collection))
}

func (s *fakeStore) commitCalls() []commitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commitCall(nil), s.commits...)
}

package live

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

var errNotSupported = errors.New("fake store: not supported")

// fakeStore records subscriptions so tests can drive deliveries by hand,
// including deliveries that arrive after cancellation.
type fakeStore struct {
	mu   sync.Mutex
	subs []*fakeSub
	fail map[string]error
}

type fakeSub struct {
	query   docstore.Query
	onData  docstore.DataFunc
	onError docstore.ErrorFunc
	cancels int
}

func newFakeStore() *fakeStore {
	return &fakeStore{fail: map[string]error{}}
}

func (f *fakeStore) Subscribe(_ context.Context, q docstore.Query, onData docstore.DataFunc, onError docstore.ErrorFunc) (docstore.CancelFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[q.String()]; ok {
		return nil, err
	}
	sub := &fakeSub{query: q, onData: onData, onError: onError}
	f.subs = append(f.subs, sub)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		sub.cancels++
	}, nil
}

// find returns the latest subscription whose query renders as key.
func (f *fakeStore) find(key string) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.subs) - 1; i >= 0; i-- {
		if f.subs[i].query.String() == key {
			return f.subs[i]
		}
	}
	return nil
}

func (f *fakeStore) cancelCount(sub *fakeSub) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sub.cancels
}

func (f *fakeStore) open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sub := range f.subs {
		if sub.cancels == 0 {
			n++
		}
	}
	return n
}

func (f *fakeStore) Create(context.Context, string, map[string]interface{}) (string, error) {
	return "", errNotSupported
}

func (f *fakeStore) Update(context.Context, string, string, map[string]interface{}) error {
	return errNotSupported
}

func (f *fakeStore) Delete(context.Context, string, string) error {
	return errNotSupported
}

func (f *fakeStore) Get(context.Context, string, string) (docstore.Document, error) {
	return docstore.Document{}, errNotSupported
}

func (f *fakeStore) QueryOnce(context.Context, docstore.Query) ([]docstore.Document, error) {
	return nil, errNotSupported
}

func (f *fakeStore) Close(context.Context) error {
	return nil
}

func doc(id string, fields map[string]interface{}) docstore.Document {
	return docstore.Document{ID: id, Fields: fields}
}

func docs(n int) []docstore.Document {
	out := make([]docstore.Document, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, docstore.Document{ID: string(rune('a' + i)), Fields: map[string]interface{}{}})
	}
	return out
}

package chatclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campusgig/messaging/internal/domain"
)

// fakeChannel dispatches pushes synchronously to its subscribers.
type fakeChannel struct {
	mu      sync.Mutex
	subs    map[int]subscription
	next    int
	emitted []*domain.Message
	emitErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{subs: make(map[int]subscription)}
}

func (f *fakeChannel) Subscribe(pred Predicate, handler Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = subscription{pred: pred, handler: handler}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeChannel) EmitMessage(ctx context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, msg)
	return f.emitErr
}

func (f *fakeChannel) push(msg *domain.Message) {
	f.mu.Lock()
	subs := make([]subscription, 0, len(f.subs))
	for i := 0; i < f.next; i++ {
		if s, ok := f.subs[i]; ok {
			subs = append(subs, s)
		}
	}
	f.mu.Unlock()

	for _, s := range subs {
		if s.pred == nil || s.pred(msg) {
			s.handler(msg)
		}
	}
}

func (f *fakeChannel) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeAPI is an in-memory store. fetchGate, when set, holds FetchHistory for
// a counterpart until the test releases it.
type fakeAPI struct {
	self string

	mu        sync.Mutex
	stored    []*domain.Message
	sendErr   error
	fetchErr  error
	fetchGate map[string]chan struct{}
	started   chan string
	seq       int
}

func newFakeAPI(self string) *fakeAPI {
	return &fakeAPI{self: self, fetchGate: make(map[string]chan struct{}), started: make(chan string, 8)}
}

func (f *fakeAPI) hold(counterpart string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.fetchGate[counterpart] = ch
	return ch
}

func (f *fakeAPI) FetchHistory(ctx context.Context, counterpartID string) ([]*domain.Message, error) {
	// The history is read when the request starts, as a server query would.
	f.mu.Lock()
	gate := f.fetchGate[counterpartID]
	var out []*domain.Message
	for _, m := range f.stored {
		if m.Between(f.self, counterpartID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	f.mu.Unlock()

	f.started <- counterpartID
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return out, nil
}

func (f *fakeAPI) Send(ctx context.Context, receiverID, content string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.seq++
	msg, err := domain.NewMessage(
		fmt.Sprintf("sent-%d", f.seq),
		f.self, receiverID, content,
		t0.Add(time.Duration(f.seq)*time.Hour),
	)
	if err != nil {
		return nil, err
	}
	f.stored = append(f.stored, msg)
	return msg, nil
}

func (f *fakeAPI) sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

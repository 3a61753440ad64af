package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"github.com/sakashimaa/cart-service/services/cart/internal/repository"
)

// fakeRepo keeps JSON snapshots like the real store so tests never share
// pointers with the service.
type fakeRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	saves   int
	failGet error
	failSet error
	failDel error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (r *fakeRepo) Get(_ context.Context, key string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failGet != nil {
		return nil, r.failGet
	}
	raw, ok := r.data[key]
	if !ok {
		return nil, repository.ErrCartNotFound
	}

	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.Normalize()
	return &c, nil
}

func (r *fakeRepo) Save(_ context.Context, key string, cart *domain.Cart, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failSet != nil {
		return r.failSet
	}
	raw, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	r.data[key] = raw
	r.ttls[key] = ttl
	r.saves++
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failDel != nil {
		return r.failDel
	}
	delete(r.data, key)
	delete(r.ttls, key)
	return nil
}

func (r *fakeRepo) Ping(context.Context) error {
	return nil
}

func (r *fakeRepo) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[key]
	return ok
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type publishedMessage struct {
	topic string
	key   string
	event domain.OutgoingEvent
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []publishedMessage
	err  error
}

func (p *fakePublisher) ProduceMessage(_ context.Context, topic, key string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedMessage{topic: topic, key: key, event: message.(domain.OutgoingEvent)})
	return nil
}

func (p *fakePublisher) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		names = append(names, m.event.Event)
	}
	return names
}

package event

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/work"
	"github.com/yola1107/baccarat/library/xgo"
)

// Handler consumes a typed event.
type Handler func(Event)

// RawHandler consumes an undecoded transport payload for one channel.
type RawHandler func(channel string, payload []byte)

// Filter rejects events before delivery; returning false drops the event.
type Filter func(Event) bool

// Middleware may replace the event with another one of the same kind.
type Middleware func(Event) Event

// Subscription is the handle returned by Subscribe*; pass it to Unsubscribe.
type Subscription struct {
	kind     Kind
	channel  string
	priority int32
	handler  Handler
	raw      RawHandler
}

// Statistics is a read-only snapshot of bus counters.
type Statistics struct {
	Published      int64
	Delivered      int64
	Dropped        int64
	FailedHandlers int64
	DecodeFailures int64
	Subscribers    int
	RawSubscribers int
}

// Bus routes typed events by kind and raw payloads by channel name.
//
// Delivery order within one Publish: plain subscribers in registration order,
// then priority subscribers from highest to lowest. Dispatch iterates a
// snapshot of the registries so subscribe/unsubscribe from inside a handler
// never affects the in-flight publish.
type Bus struct {
	mu       sync.RWMutex
	plain    map[Kind][]*Subscription
	priority map[Kind][]*Subscription // kept sorted, highest first
	raws     map[string][]*Subscription
	filters  map[Kind][]Filter
	mws      map[Kind][]Middleware

	loop  *work.Loop
	sched work.Scheduler

	closed         atomic.Bool
	published      atomic.Int64
	delivered      atomic.Int64
	dropped        atomic.Int64
	failedHandlers atomic.Int64
	decodeFailures atomic.Int64
}

// New builds a bus. loop and sched back PublishAsync/PublishDelayed; either
// may be nil, in which case deferred publishes fall back to goroutines/timers.
func New(loop *work.Loop, sched work.Scheduler) *Bus {
	return &Bus{
		plain:    make(map[Kind][]*Subscription),
		priority: make(map[Kind][]*Subscription),
		raws:     make(map[string][]*Subscription),
		filters:  make(map[Kind][]Filter),
		mws:      make(map[Kind][]Middleware),
		loop:     loop,
		sched:    sched,
	}
}

// Subscribe registers h for events of the given kind. Duplicate registrations
// duplicate delivery; keep the returned handle to unsubscribe.
func (b *Bus) Subscribe(kind Kind, h Handler) *Subscription {
	if h == nil {
		return nil
	}
	sub := &Subscription{kind: kind, handler: h}
	b.mu.Lock()
	b.plain[kind] = append(b.plain[kind], sub)
	b.mu.Unlock()
	return sub
}

// SubscribeWithPriority registers h on the priority tier. Higher priority is
// delivered earlier; all priority subscribers run after the plain tier.
func (b *Bus) SubscribeWithPriority(kind Kind, priority int32, h Handler) *Subscription {
	if h == nil {
		return nil
	}
	sub := &Subscription{kind: kind, priority: priority, handler: h}
	b.mu.Lock()
	list := append(b.priority[kind], sub)
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })
	b.priority[kind] = list
	b.mu.Unlock()
	return sub
}

// SubscribeRaw registers h for one raw channel. Channel names are
// case-insensitive.
func (b *Bus) SubscribeRaw(channel string, h RawHandler) *Subscription {
	if h == nil || channel == "" {
		return nil
	}
	key := strings.ToLower(channel)
	sub := &Subscription{channel: key, raw: h}
	b.mu.Lock()
	b.raws[key] = append(b.raws[key], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes one registration; no-op for nil or unknown handles.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case sub.raw != nil:
		b.raws[sub.channel] = removeSub(b.raws[sub.channel], sub)
	case sub.priority != 0:
		b.priority[sub.kind] = removeSub(b.priority[sub.kind], sub)
	default:
		// a zero-priority handle may live on either tier
		if next := removeSub(b.plain[sub.kind], sub); len(next) != len(b.plain[sub.kind]) {
			b.plain[sub.kind] = next
			return
		}
		b.priority[sub.kind] = removeSub(b.priority[sub.kind], sub)
	}
}

func removeSub(list []*Subscription, sub *Subscription) []*Subscription {
	for i, s := range list {
		if s == sub {
			return append(append([]*Subscription{}, list[:i]...), list[i+1:]...)
		}
	}
	return list
}

// AddFilter appends a filter for one kind; filters run in registration order.
func (b *Bus) AddFilter(kind Kind, f Filter) {
	if f == nil {
		return
	}
	b.mu.Lock()
	b.filters[kind] = append(b.filters[kind], f)
	b.mu.Unlock()
}

// AddMiddleware appends a transform for one kind.
func (b *Bus) AddMiddleware(kind Kind, mw Middleware) {
	if mw == nil {
		return
	}
	b.mu.Lock()
	b.mws[kind] = append(b.mws[kind], mw)
	b.mu.Unlock()
}

// Publish delivers ev synchronously. A nil event is logged and ignored. One
// panicking handler is contained, counted and does not stop delivery.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		log.Warnf("bus: publish nil event")
		return
	}
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}
	b.published.Add(1)

	kind := ev.Kind()

	b.mu.RLock()
	filters := b.filters[kind]
	mws := b.mws[kind]
	plain := append([]*Subscription{}, b.plain[kind]...)
	prio := append([]*Subscription{}, b.priority[kind]...)
	b.mu.RUnlock()

	for _, f := range filters {
		if !f(ev) {
			b.dropped.Add(1)
			return
		}
	}
	for _, mw := range mws {
		next := mw(ev)
		if next == nil {
			log.Warnf("bus: middleware returned nil for %v, keeping previous event", kind)
			continue
		}
		if next.Kind() != kind {
			log.Errorf("bus: middleware changed kind %v -> %v, ignored", kind, next.Kind())
			continue
		}
		ev = next
	}

	for _, sub := range plain {
		b.invoke(sub, ev)
	}
	for _, sub := range prio {
		b.invoke(sub, ev)
	}
}

func (b *Bus) invoke(sub *Subscription, ev Event) {
	defer xgo.RecoverFromError(func(any) {
		b.failedHandlers.Add(1)
	})
	sub.handler(ev)
	b.delivered.Add(1)
}

// PublishAsync defers the publish to the next tick of the work loop.
func (b *Bus) PublishAsync(ev Event) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}
	if b.loop != nil {
		b.loop.Post(func() { b.Publish(ev) })
		return
	}
	go b.Publish(ev)
}

// PublishDelayed publishes ev after the given delay.
func (b *Bus) PublishDelayed(ev Event, delay time.Duration) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}
	if b.sched != nil {
		b.sched.Once(delay, func() { b.Publish(ev) })
		return
	}
	time.AfterFunc(delay, func() { b.PublishAsync(ev) })
}

// Statistics returns a snapshot of the counters.
func (b *Bus) Statistics() Statistics {
	b.mu.RLock()
	subs, raws := 0, 0
	for _, l := range b.plain {
		subs += len(l)
	}
	for _, l := range b.priority {
		subs += len(l)
	}
	for _, l := range b.raws {
		raws += len(l)
	}
	b.mu.RUnlock()

	return Statistics{
		Published:      b.published.Load(),
		Delivered:      b.delivered.Load(),
		Dropped:        b.dropped.Load(),
		FailedHandlers: b.failedHandlers.Load(),
		DecodeFailures: b.decodeFailures.Load(),
		Subscribers:    subs,
		RawSubscribers: raws,
	}
}

// Shutdown stops delivery and clears every registry.
func (b *Bus) Shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	b.plain = make(map[Kind][]*Subscription)
	b.priority = make(map[Kind][]*Subscription)
	b.raws = make(map[string][]*Subscription)
	b.filters = make(map[Kind][]Filter)
	b.mws = make(map[Kind][]Middleware)
	b.mu.Unlock()
	log.Info("bus shutdown")
}

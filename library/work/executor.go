package work

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/xgo"
)

/*
	AntsLoop 后台协程池，承接不能占用主循环的阻塞任务（拨号等）。
*/

type AntsLoop struct {
	mu       sync.RWMutex
	pool     *ants.Pool
	size     int
	fallback func(ctx context.Context, fn func())
}

type AntsOption func(*AntsLoop)

// WithFallback overrides what happens to a job the pool cannot accept.
func WithFallback(fallback func(ctx context.Context, fn func())) AntsOption {
	return func(l *AntsLoop) { l.fallback = fallback }
}

func NewAntsLoop(size int, opts ...AntsOption) *AntsLoop {
	l := &AntsLoop{
		size: size,
		fallback: func(ctx context.Context, fn func()) {
			go safeRun(ctx, fn)
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *AntsLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		log.Warnf("antsLoop already started.")
		return nil
	}

	pool, err := ants.NewPool(l.size, ants.WithExpiryDuration(60*time.Second))
	if err != nil {
		return fmt.Errorf("pool init failed: %w", err)
	}

	l.pool = pool
	log.Infof("antsLoop start... [size:%d]", l.size)
	return nil
}

func (l *AntsLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pool != nil {
		p := l.pool
		l.pool = nil
		p.Release()
		log.Infof("antsLoop stopping [running:%d]", p.Running())
	}
}

func (l *AntsLoop) Post(job func()) {
	l.PostCtx(context.Background(), job)
}

func (l *AntsLoop) PostCtx(ctx context.Context, job func()) {
	if ctx.Err() == nil {
		l.submit(ctx, job)
	}
}

func (l *AntsLoop) submit(ctx context.Context, fn func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pool == nil || l.pool.IsClosed() {
		l.triggerFallback(ctx, fn, "pool not started or closed.")
		return
	}

	if err := l.pool.Submit(func() { safeRun(ctx, fn) }); err != nil {
		l.triggerFallback(ctx, fn, err.Error())
	}
}

func (l *AntsLoop) triggerFallback(ctx context.Context, fn func(), reason string) {
	log.Warnf("antsLoop fallback. reason=%s", reason)
	l.fallback(ctx, fn)
}

func safeRun(ctx context.Context, fn func()) {
	defer xgo.RecoverFromError(nil)
	if ctx.Err() == nil {
		fn()
	}
}

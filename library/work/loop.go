package work

import (
	"sync/atomic"

	"github.com/yola1107/baccarat/library/log"
	"github.com/yola1107/baccarat/library/xgo"
)

/*
	Loop 单线程协作式任务队列。所有领域状态只在这个队列的 goroutine 上变更。
*/

const defaultJobsCap = 1024

type Loop struct {
	jobs    chan func()
	toggle  chan struct{}
	started atomic.Bool
}

// NewLoop creates a job queue with the given buffer size.
func NewLoop(jobsCnt int) *Loop {
	if jobsCnt <= 0 {
		jobsCnt = defaultJobsCap
	}
	return &Loop{
		jobs:   make(chan func(), jobsCnt),
		toggle: make(chan struct{}),
	}
}

func (lp *Loop) Start() {
	if !lp.started.CompareAndSwap(false, true) {
		log.Warnf("loop already started.")
		return
	}
	log.Infof("loop start ..")
	go lp.run()
}

func (lp *Loop) run() {
	defer xgo.RecoverFromError(func(any) {
		go lp.run() // the loop must survive a panicking job
	})
	for {
		select {
		case <-lp.toggle:
			log.Info("loop routine stop.")
			return
		case job := <-lp.jobs:
			job()
		}
	}
}

func (lp *Loop) Stop() {
	if !lp.started.CompareAndSwap(true, false) {
		return
	}
	go func() {
		lp.toggle <- struct{}{}
	}()
}

func (lp *Loop) Jobs() int {
	return len(lp.jobs)
}

// Post enqueues a job preserving per-caller FIFO order. Falls back to a
// goroutine only when the queue is saturated.
func (lp *Loop) Post(job func()) {
	if job == nil {
		return
	}
	select {
	case lp.jobs <- job:
	default:
		log.Warnf("loop queue full (cap=%d), posting async", cap(lp.jobs))
		go func() {
			lp.jobs <- job
		}()
	}
}

func (lp *Loop) PostAndWait(job func() any) any {
	ch := make(chan any, 1)
	lp.Post(func() {
		defer xgo.RecoverFromError(func(e any) {
			ch <- nil
		})
		ch <- job()
	})
	return <-ch
}

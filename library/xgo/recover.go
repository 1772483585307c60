package xgo

import (
	"runtime/debug"

	"github.com/yola1107/baccarat/library/log"
)

func RecoverFromError(cb func(e any)) {
	if e := recover(); e != nil {
		log.Errorf("Recover => %v\n%s\n", e, debug.Stack())
		if cb != nil {
			cb(e)
		}
	}
}

// SafeCall runs fn and swallows any panic it raises.
func SafeCall(fn func()) {
	defer RecoverFromError(nil)
	if fn != nil {
		fn()
	}
}

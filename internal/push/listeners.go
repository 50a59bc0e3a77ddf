package push

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/dabir-notify/internal/zlog"
)

// listeners is an ordered set of callbacks invoked outside any lock.
type listeners[T any] struct {
	mu     sync.Mutex
	nextID uint64
	order  []uint64
	fns    map[uint64]func(T)
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(T))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn
	l.order = append(l.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fns, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	fns := make([]func(T), 0, len(l.order))
	for _, id := range l.order {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					zlog.Error("push listener panicked", zap.String("panic", fmt.Sprint(r)))
				}
			}()
			fn(v)
		}()
	}
}

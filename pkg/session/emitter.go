package session

import (
	"sync"
	"sync/atomic"
)

// Emitter хранит подписчиков на событие одного типа.
// Нулевое значение готово к использованию. Безопасен для конкурентного
// использования, подписчики вызываются в горутине Emit в порядке подписки.
type Emitter[T any] struct {
	mu       sync.RWMutex
	handlers []func(T)
}

// On добавляет подписчика
func (e *Emitter[T]) On(fn func(T)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, fn)
	e.mu.Unlock()
}

// Once добавляет подписчика, который сработает не более одного раза
func (e *Emitter[T]) Once(fn func(T)) {
	if fn == nil {
		return
	}
	var fired atomic.Bool
	e.On(func(v T) {
		if fired.CompareAndSwap(false, true) {
			fn(v)
		}
	})
}

// Emit вызывает всех подписчиков
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	handlers := make([]func(T), len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, h := range handlers {
		h(v)
	}
}

// Len возвращает количество подписчиков
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

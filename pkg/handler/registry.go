package handler

import (
	"errors"
	"sync"
	"time"

	"github.com/arzzra/sipcallstats/pkg/session"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRegistered для сессии уже зарегистрирован Handler
var ErrAlreadyRegistered = errors.New("handler already registered for session")

// Registry хранит Handler'ы по идентификатору сессии.
//
// Если задан срок хранения, запись удаляется спустя этот срок после
// первого терминального события сессии (failed, terminated, cancel).
type Registry struct {
	mu        sync.Mutex
	handlers  map[string]*Handler
	timers    map[string]*time.Timer
	retention time.Duration
	log       *logrus.Entry
}

// NewRegistry создает реестр. retention <= 0 отключает удаление.
func NewRegistry(retention time.Duration, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.WithField("component", "registry")
	}
	return &Registry{
		handlers:  make(map[string]*Handler),
		timers:    make(map[string]*time.Timer),
		retention: retention,
		log:       log,
	}
}

// Put добавляет Handler под идентификатором его сессии
func (r *Registry) Put(h *Handler) error {
	s := h.Session()
	id := s.ID()

	r.mu.Lock()
	if _, exists := r.handlers[id]; exists {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.handlers[id] = h
	r.mu.Unlock()

	if r.retention > 0 {
		s.OnFailed(func(session.FailedEvent) { r.expire(id, h) })
		s.OnTerminated(func(session.TerminatedEvent) { r.expire(id, h) })
		s.OnCancel(func() { r.expire(id, h) })
	}
	return nil
}

// Get возвращает Handler сессии
func (r *Registry) Get(sessionID string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[sessionID]
	return h, ok
}

// Delete удаляет Handler сессии
func (r *Registry) Delete(sessionID string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[sessionID]
	if !ok {
		return nil, false
	}
	r.removeLocked(sessionID)
	return h, true
}

// Len возвращает количество записей
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Close останавливает отложенные удаления. Записи остаются в реестре.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// expire планирует удаление записи, если оно еще не запланировано
func (r *Registry) expire(id string, h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[id] != h {
		return
	}
	if _, scheduled := r.timers[id]; scheduled {
		return
	}
	r.timers[id] = time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.handlers[id] == h {
			r.removeLocked(id)
			r.log.WithField("session", id).Debug("handler released")
		}
	})
}

func (r *Registry) removeLocked(id string) {
	delete(r.handlers, id)
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
}

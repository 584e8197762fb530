package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEmptySession передана пустая сессия
	ErrEmptySession = errors.New("empty session")
	// ErrNoMediaHandler сессия не предоставляет медиа обработчик ни в одной форме
	ErrNoMediaHandler = errors.New("session has no media handler")
	// ErrMediaHandlerTimeout обработчик описаний не был создан до отмены контекста
	ErrMediaHandlerTimeout = errors.New("session description handler was not created")
)

// compatSession сессия новой формы, к которой обработчик описаний приложен
// как медиа обработчик.
type compatSession struct {
	Signaling
	handler MediaHandler
}

func (c *compatSession) MediaHandler() MediaHandler {
	return c.handler
}

// ConferenceID пробрасывает идентификатор конференции исходной сессии
func (c *compatSession) ConferenceID() string {
	if ci, ok := c.Signaling.(ConferenceIDer); ok {
		return ci.ConferenceID()
	}
	return ""
}

// Unwrap возвращает исходную сессию
func (c *compatSession) Unwrap() Signaling {
	return c.Signaling
}

// Ready возвращает сессию в форме Session, если медиа обработчик доступен
// без ожидания.
func Ready(s Signaling) (Session, bool) {
	if s == nil {
		return nil, false
	}
	if sess, ok := s.(Session); ok && sess.MediaHandler() != nil {
		return sess, true
	}
	if dh, ok := s.(DescriptionHandlerSession); ok {
		if h := dh.SessionDescriptionHandler(); h != nil {
			return &compatSession{Signaling: s, handler: h}, true
		}
	}
	return nil, false
}

// OnReady вызывает fn с сессией в форме Session, как только медиа обработчик
// станет доступен. Если он уже есть, fn вызывается сразу. Иначе fn вызывается
// в горутине первого события создания обработчика описаний, до того как
// сессия испустит следующие события. fn вызывается не более одного раза.
//
// Возвращаемая stop прекращает ожидание. Она возвращает true, если fn еще не
// была вызвана и больше вызвана не будет.
func OnReady(s Signaling, fn func(Session)) (stop func() bool, err error) {
	if s == nil {
		return nil, ErrEmptySession
	}

	if sess, ok := Ready(s); ok {
		fn(sess)
		return func() bool { return false }, nil
	}

	dh, ok := s.(DescriptionHandlerSession)
	if !ok {
		return nil, ErrNoMediaHandler
	}

	var (
		mu   sync.Mutex
		done bool
	)
	// fn выполняется под mu: параллельный resolve дождется ее окончания
	resolve := func(h MediaHandler) {
		if h == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		done = true
		fn(&compatSession{Signaling: s, handler: h})
	}

	dh.OnSessionDescriptionHandlerCreated(resolve)
	// обработчик мог появиться между проверкой и подпиской
	resolve(dh.SessionDescriptionHandler())

	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return false
		}
		done = true
		return true
	}, nil
}

// Normalize приводит сессию к форме Session.
//
// Если у сессии уже есть медиа обработчик, она возвращается без изменений.
// Если сессия новой формы и обработчик описаний уже создан, возвращается
// обертка, отдающая его через MediaHandler(). Иначе Normalize ждет первого
// события создания обработчика; последующие события игнорируются. Ожидание
// ограничено ctx.
//
// Повторный вызов для результата Normalize возвращает тот же объект.
func Normalize(ctx context.Context, s Signaling) (Session, error) {
	created := make(chan Session, 1)
	stop, err := OnReady(s, func(sess Session) { created <- sess })
	if err != nil {
		return nil, err
	}

	select {
	case sess := <-created:
		return sess, nil
	case <-ctx.Done():
		if stop() {
			return nil, fmt.Errorf("%w: %w", ErrMediaHandlerTimeout, ctx.Err())
		}
		return <-created, nil
	}
}

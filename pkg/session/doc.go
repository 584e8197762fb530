// Package session описывает контракт SIP сессии, за которой наблюдает
// аналитика, и приводит сессии разных форм к единому виду.
//
// Сессии встречаются в двух формах:
//
//   - устаревшая: медиа обработчик доступен через Session.MediaHandler()
//   - новая: обработчик описаний сессии (DescriptionHandlerSession) может
//     появиться позже, о чем сообщает событие создания обработчика
//
// Normalize скрывает это различие и всегда возвращает Session с доступным
// медиа обработчиком.
//
// # События
//
// Подписки на события сессии типизированы (OnFailed, OnHold, OnMuted и т.д.).
// Для реализации подписок в сторонних сессиях пакет предоставляет Emitter.
package session

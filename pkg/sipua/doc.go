// Package sipua реализует SIP user agent на базе sipgo, сессии которого
// удовлетворяют контракту пакета session и могут наблюдаться аналитикой.
//
// # Основные возможности
//
//   - Входящие вызовы: INVITE, ответ (Answer) или отклонение (Reject), CANCEL
//   - Исходящие вызовы: Dial, отмена (Cancel), ACK на 2xx
//   - Завершение вызова BYE с любой стороны
//   - Удержание: локальное через re-INVITE с измененным направлением SDP,
//     удаленное определяется по направлению SDP во входящем re-INVITE
//   - Отключение медиа (Mute/Unmute) генерирует события сессии
//
// Обработчик описаний сессии (Descriptions) создается при первом SDP в
// рамках сессии, поэтому подписчики события invite получают сессию без
// него и дожидаются события создания обработчика.
//
// # Состояния вызова
//
//	[IDLE] → [Calling] → [InCall] → [Terminating] → [Ended]
//	[IDLE] → [Ringing] → [InCall] → [Ended]
//	[Calling] → [Ended]
//	[Ringing] → [Ended]
//
// Переходы выполняются конечным автоматом looplab/fsm, события именуются
// "SRC_to_DST".
package sipua

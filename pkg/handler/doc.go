// Package handler переводит события SIP сессии в вызовы клиента аналитики.
//
// Для каждой сессии создается ровно один Handler. При создании он
// регистрирует фабрику и подписывается на события сессии и ее медиа
// обработчика; дальнейшая работа идет только через подписки. Handler не
// хранит собственного состояния звонка, ничего не буферизует и не повторяет.
//
// # Соответствие событий
//
//	failed, terminated      -> fabricTerminated + классификация причины
//	cancel                  -> fabricTerminated
//	hold / unhold           -> fabricHold / fabricResume
//	muted (audio, video)    -> audioMute, videoPause
//	unmuted (audio, video)  -> audioUnmute, videoResume
//	ошибки согласования     -> ReportError с тегом операции
//
// Причины из закрытого набора ожидаемых (IsExpectedCause) отправляются как
// запись журнала приложения, остальные как ошибка сигнализации.
package handler

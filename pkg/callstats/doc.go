// Package callstats описывает контракт клиента сервиса аналитики качества
// WebRTC звонков и содержит его реализации.
//
// Клиент работает с "фабриками" (fabric): аналитической единицей для пары
// соединение + идентификатор конференции. Фабрика регистрируется через
// AddNewFabric, после чего по ней отправляются события (SendFabricEvent) и
// ошибки (ReportError).
//
// # Реализации
//
//   - MetricsClient экспортирует события в виде Prometheus метрик
//   - LogClient пишет каждый вызов в структурированный лог (logrus)
//   - Multi рассылает вызовы нескольким клиентам
//
// # Пример
//
//	reg := prometheus.NewRegistry()
//	client := callstats.Multi(
//		callstats.NewMetricsClient(&callstats.MetricsConfig{Registerer: reg}),
//		callstats.NewLogClient(log),
//	)
//	err := client.Initialize("app", callstats.StaticSecret("secret"),
//		callstats.UserID{UserName: "alice"}, nil, nil, nil)
package callstats

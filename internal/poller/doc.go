// Package poller опрашивает внешние сервисы об асинхронных запросах.
//
// Задача, отправившая запрос в сервис со статусами, остаётся в WAITING,
// а в external_service_statuses появляется запись в состоянии Pending.
// Poller раз в интервал берёт открытые записи (Pending, Received),
// спрашивает сервис и продвигает состояние только вперёд:
//
//	Pending → Received → Fulfilled
//	                   ↘ Rejected
//
// На терминальном состоянии узел завершается, и в очередь manager
// уходит уведомление {taskId}: обход графа продолжается.
//
// Переход записывается условно (UPDATE ... WHERE state = <прежнее>),
// поэтому несколько экземпляров poller'а не отправят уведомление дважды.
package poller

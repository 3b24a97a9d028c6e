// Package worker выполняет узлы процесса: задачи, шлюзы и события.
//
// # Обзор
//
// Worker — stateless компонент, работающий в одной из трёх ролей
// (WORKER_ROLE = task | gateway | event). Manager кладёт work item
// в очередь роли; worker выполняет узел и отправляет в очередь manager
// уведомление о завершении ({taskId}, {gatewayId} или {eventId}).
//
//	w, err := worker.New(worker.Config{
//	    Role:      config.RoleTask,
//	    Graphs:    schemaCache,
//	    Instances: instanceRepo,
//	    Nodes:     nodeRepo,
//	    Statuses:  externalRepo,
//	    Providers: providers,
//	    Publisher: publisher,
//	    Queues:    cfg.Queues,
//	    Source:    conn,
//	})
//
// # Executor'ы
//
//   - TaskExecutor — вызывает внешний сервис (атрибут service узла)
//     через provider.Registry; задача без сервиса завершается сразу
//   - GatewayExecutor — вычисляет conditionExpression рёбер (JMESPath)
//     и записывает выбранные рёбра в resultSequences
//   - EventExecutor — отмечает событие; атрибут delay задаёт таймер
//
// # Обработка work item
//
//  1. Проверка вида узла (work item не той роли — InvalidMessage)
//  2. Граф шаблона из Schema Cache, узел, экземпляр процесса
//  3. Запись узла в статусе RUNNING
//  4. Выполнение executor'ом
//  5. COMPLETED + уведомление manager, либо WAITING + статус внешнего
//     сервиса (уведомление отправит poller), либо FAILED
//
// Неповторяемые ошибки подтверждаются и пишутся в журнал ошибок
// процесса; остальные уходят в лестницу ретраев очереди.
package worker

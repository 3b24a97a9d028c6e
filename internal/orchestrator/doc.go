// Package orchestrator — движок обхода BPMN-графа (роль manager).
//
// Orchestrator отвечает за:
//   - Получение уведомлений о завершении узлов из очереди manager
//   - Вычисление следующих узлов по ProcessGraph из Schema Cache
//   - Проверку join параллельного шлюза по накопленной истории
//   - Отправку work items в очереди задач, шлюзов и событий
//   - Завершение процесса на конечном событии
//   - Журнал ошибок, флаг экземпляра и уведомления подписчиков
//
// История экземпляра только дописывается атомарными операциями,
// поэтому соседние ветки могут завершаться одновременно.
package orchestrator

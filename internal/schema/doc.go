// Package schema — кэш BPMN-графов активных шаблонов процессов.
//
// Reload читает все активные шаблоны, разбирает каждый в ProcessGraph
// и целиком подменяет таблицу графов (atomic.Pointer). Шаблон, который
// не разобрался, логируется и исключается: остальные остаются доступны.
// Читатели (FindByID) не берут блокировок и никогда не видят
// наполовину обновлённую таблицу.
package schema

// Package engine содержит модель BPMN-графа и правила его обхода.
//
// Включает:
//   - parser.go   — разбор BPMN XML в ProcessGraph (namespace-aware)
//   - graph.go    — ProcessGraph: узлы по разделам, рёбра, поиск
//   - classify.go — классификация targetRef по соглашению об именах
//   - template.go — рендеринг Go templates для тел запросов провайдеров
//   - expr.go     — JMESPath выражения (условия шлюзов, предикаты ответов)
//
// Engine не знает ни о БД, ни об очередях: он отвечает только за понимание
// структуры процесса.
package engine

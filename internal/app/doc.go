// Package app собирает зависимости процесса Processa.
//
// Context создаётся один раз в main и передаётся в конструкторы
// явно. Глобального состояния (кроме slog.Default и реестра метрик)
// нет.
package app

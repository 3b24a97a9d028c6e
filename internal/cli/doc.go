// Package cli реализует инструмент командной строки Processa.
//
// # Обзор
//
// CLI работает с manager через HTTP API (шаблоны, процессы) и
// локально (разбор BPMN-файлов, топология очередей по конфигурации).
// Пакет internal/api не импортируется: ответы API продублированы
// в client.go.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Processa API. Инкапсулирует запросы, разбор
// ответов ({data}, {data, total}, {error, code}) и ошибки.
//
//	client := cli.NewClient("http://localhost:8080")
//	templates, err := client.ListTemplates()
//
// ## Output
//
// Форматирование вывода:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr,
// поэтому работает pipe: processa template list --json | jq .
//
// ## Commands
//
//   - template: list, create, show, activate, deactivate, reload
//   - workflow: start, show
//   - graph: inspect (без API)
//   - topology: show, declare (без API, по конфигурации)
//
// Каждая группа создаётся фабричной функцией (NewTemplateCmd и т.д.),
// принимающей замыкания для ленивого создания Client, Output и Config
// после парсинга PersistentFlags.
package cli

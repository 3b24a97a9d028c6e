// Package provider — вызовы внешних сервисов из задач процесса.
//
// Каждый сервис из providers.yaml обслуживается реализацией Provider,
// выбранной по providerType:
//   - standard      — REST: POST JSON, bearer/basic, id или success в ответе
//   - standard-rmq  — запрос в очередь и ожидание коррелированного ответа
//     (или через HTTP-декоратор)
//   - trembita      — SOAP-конверт X-Road, текстовая проверка ответа
//   - signer        — подпись загруженных файлов по одному с паузой
//
// Все реализации повторяют вызов по списку задержек сервиса
// и логируют запросы и ответы со скрытыми секретами.
package provider

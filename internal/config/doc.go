// Package config загружает конфигурацию сервисов Processa.
//
// Источники (в порядке приоритета):
//   - переменные окружения (viper.AutomaticEnv)
//   - необязательный .env файл (godotenv, не перекрывает окружение)
//   - значения по умолчанию
//
// Определения внешних сервисов (провайдеров) хранятся отдельно
// в YAML файле PROVIDERS_FILE, см. LoadServices.
package config

package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig — определение внешнего сервиса из providers.yaml.
//
//	services:
//	  registry:
//	    providerType: standard
//	    url: https://registry.example/api/requests
//	    auth: {type: bearer, token: ${REGISTRY_TOKEN}}
//	    retryDelays: [1s, 5s, 30s]
//	    idExpression: result.requestId
type ServiceConfig struct {
	// Name — ключ в секции services.
	Name string `yaml:"-"`

	// ProviderType — standard / standard-rmq / trembita / signer.
	ProviderType string `yaml:"providerType"`

	URL       string `yaml:"url"`
	StatusURL string `yaml:"statusUrl"`

	Auth    AuthConfig    `yaml:"auth"`
	Timeout time.Duration `yaml:"timeout"`

	// RetryDelays — паузы между повторами; попыток len(RetryDelays)+1.
	RetryDelays []time.Duration `yaml:"retryDelays"`

	// IDExpression — JMESPath выражение для id в ответе.
	IDExpression string `yaml:"idExpression"`

	// SuccessExpression — JMESPath предикат успешности ответа.
	SuccessExpression string `yaml:"successExpression"`

	// Decorator — имя зарегистрированного декоратора ответа.
	Decorator string `yaml:"decorator"`

	// Event и Queue — для standard-rmq: имя события и очередь запросов.
	Event string `yaml:"event"`
	Queue string `yaml:"queue"`

	// DecoratorURL — standard-rmq через HTTP декоратор вместо очереди.
	DecoratorURL string `yaml:"decoratorUrl"`

	Trembita *TrembitaConfig `yaml:"trembita"`
	Signer   *SignerConfig   `yaml:"signer"`
}

// AuthConfig — аутентификация исходящих запросов.
type AuthConfig struct {
	Type     string `yaml:"type"` // bearer / basic / пусто
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TrembitaConfig — маршрутизация X-Road.
type TrembitaConfig struct {
	Client  XRoadClient  `yaml:"client"`
	Service XRoadService `yaml:"service"`
	UserID  string       `yaml:"userId"`

	// Faults — коды ошибок сервиса, перекрывающие общую проверку успеха.
	Faults map[string]string `yaml:"faults"`
}

// XRoadClient — идентификатор подсистемы-клиента.
type XRoadClient struct {
	Instance      string `yaml:"instance"`
	MemberClass   string `yaml:"memberClass"`
	MemberCode    string `yaml:"memberCode"`
	SubsystemCode string `yaml:"subsystemCode"`
}

// XRoadService — идентификатор вызываемого сервиса.
type XRoadService struct {
	Instance       string `yaml:"instance"`
	MemberClass    string `yaml:"memberClass"`
	MemberCode     string `yaml:"memberCode"`
	SubsystemCode  string `yaml:"subsystemCode"`
	ServiceCode    string `yaml:"serviceCode"`
	ServiceVersion string `yaml:"serviceVersion"`
}

// SignerConfig — настройки провайдера подписи.
type SignerConfig struct {
	InterFileDelay time.Duration `yaml:"interFileDelay"`
}

type servicesFile struct {
	Services map[string]ServiceConfig `yaml:"services"`
}

// LoadServices читает файл провайдеров.
// Ссылки ${VAR} подставляются из окружения до разбора.
// Отсутствующий файл — не ошибка: сервисов нет.
func LoadServices(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrServicesFile, err)
	}
	return ParseServices(data)
}

// ParseServices разбирает YAML с определениями сервисов.
func ParseServices(data []byte) ([]ServiceConfig, error) {
	var f servicesFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServicesFile, err)
	}

	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServiceConfig, 0, len(names))
	for _, name := range names {
		svc := f.Services[name]
		svc.Name = name
		if svc.ProviderType == "" {
			return nil, fmt.Errorf("%w: service %q has no providerType", ErrServicesFile, name)
		}
		out = append(out, svc)
	}
	return out, nil
}

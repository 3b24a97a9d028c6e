package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Выражения в схемах и providers.yaml — JMESPath. Они только читают
// данные и не могут выполнить произвольный код.

var compiled sync.Map // выражение → *jmespath.JMESPath

// CompileExpr компилирует выражение (с кэшированием).
func CompileExpr(expr string) (*jmespath.JMESPath, error) {
	if v, ok := compiled.Load(expr); ok {
		return v.(*jmespath.JMESPath), nil
	}
	jp, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrExpression, expr, err)
	}
	compiled.Store(expr, jp)
	return jp, nil
}

// Evaluate вычисляет выражение над данными.
//
// Данные приводятся к JSON-виду (числа — float64), чтобы
// сравнения с литералами работали одинаково для любых Go-типов.
func Evaluate(expr string, data any) (any, error) {
	jp, err := CompileExpr(strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}

	normalized, err := normalize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExpression, err)
	}

	result, err := jp.Search(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: evaluate %q: %v", ErrExpression, expr, err)
	}
	return result, nil
}

// EvalBool вычисляет выражение и приводит результат к bool
// по правилам истинности JMESPath: false, null, "", [] и {} ложны.
func EvalBool(expr string, data any) (bool, error) {
	v, err := Evaluate(expr, data)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// EvalString вычисляет выражение и возвращает строку.
// Числа форматируются без экспоненты, null — пустая строка.
func EvalString(expr string, data any) (string, error) {
	v, err := Evaluate(expr, data)
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

// Truthy — истинность значения по правилам JMESPath.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

// Stringify превращает скалярное значение в строку.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func normalize(data any) (any, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

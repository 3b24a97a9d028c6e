package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// envelopeFuncs — функции, доступные в шаблонах конвертов провайдеров.
var envelopeFuncs = template.FuncMap{
	"xml":  xmlEscape,
	"b64":  encodeBase64,
	"json": encodeJSON,
}

// envelopes — разобранные шаблоны по исходному тексту.
// Шаблоны конвертов статичны, поэтому кэш не ограничен.
var envelopes sync.Map

// Render подставляет data в текстовый шаблон.
//
//	<userId>{{ xml .UserID }}</userId>
//	<data>{{ b64 .Payload }}</data>
func Render(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := parseCached(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

func parseCached(tmpl string) (*template.Template, error) {
	if t, ok := envelopes.Load(tmpl); ok {
		return t.(*template.Template), nil
	}

	t, err := template.New("envelope").Funcs(envelopeFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	actual, _ := envelopes.LoadOrStore(tmpl, t)
	return actual.(*template.Template), nil
}

// xmlEscape экранирует спецсимволы XML.
func xmlEscape(v any) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(fmt.Sprint(v)))
	return buf.String()
}

// encodeBase64 кодирует строку или байты как есть,
// остальные значения предварительно сериализуются в JSON.
func encodeBase64(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(s), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

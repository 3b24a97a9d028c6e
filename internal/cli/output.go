package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд.
//
// Данные (таблицы, JSON, XML) идут в out, служебные сообщения в msg,
// чтобы `processa ... --json | jq` получал чистый JSON.
type Output struct {
	asJSON bool
	out    io.Writer
	msg    io.Writer
}

// NewOutput создаёт Output поверх stdout/stderr.
func NewOutput(asJSON bool) *Output {
	return NewOutputTo(asJSON, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(asJSON bool, out, msg io.Writer) *Output {
	return &Output{asJSON: asJSON, out: out, msg: msg}
}

// Print печатает таблицу, а в режиме --json исходное значение v.
func (o *Output) Print(headers []string, rows [][]string, v any) {
	if o.asJSON {
		o.JSON(v)
		return
	}
	o.Table(headers, rows)
}

// Table печатает выровненную таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	writeRow(tw, headers)
	writeRow(tw, underline)
	if len(rows) == 0 {
		fmt.Fprintln(tw, "(none)")
		return
	}
	for _, row := range rows {
		writeRow(tw, row)
	}
}

func writeRow(w io.Writer, cells []string) {
	fmt.Fprintln(w, strings.Join(cells, "\t"))
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Warn("encode output: " + err.Error())
	}
}

// Text печатает s без изменений.
func (o *Output) Text(s string) {
	io.WriteString(o.out, s)
}

// Notice печатает служебное сообщение.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.msg, format+"\n", args...)
}

// Warn печатает предупреждение.
func (o *Output) Warn(msg string) {
	fmt.Fprintln(o.msg, "warning: "+msg)
}

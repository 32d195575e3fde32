package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// maxCellWidth — длиннее обрезается в таблицах; полный текст есть в --json.
const maxCellWidth = 60

// Output печатает результаты команд: данные в stdout, статус в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput печатает в stdout/stderr.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo печатает в заданные writers.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print печатает список: таблицей или jsonData в режиме --json.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
	if len(rows) == 0 {
		fmt.Fprintln(o.errW, "(no results)")
	}
}

// Table печатает заголовок, строку из дефисов и строки.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}

	writeRow(tw, headers)
	writeRow(tw, underline)
	for _, row := range rows {
		writeRow(tw, row)
	}
}

func writeRow(w io.Writer, cells []string) {
	clipped := make([]string, len(cells))
	for i, c := range cells {
		clipped[i] = clip(c)
	}
	fmt.Fprintln(w, strings.Join(clipped, "\t"))
}

// clip укорачивает ячейку и убирает переводы строк и табы, ломающие выравнивание.
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxCellWidth {
		return s
	}
	r := []rune(s)
	return string(r[:maxCellWidth-1]) + "…"
}

// JSON печатает v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(o.errW, "encode output: %v\n", err)
	}
}

// Detail печатает одну сущность парами "ключ: значение", пустые пропускаются.
func (o *Output) Detail(fields [][2]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	for _, f := range fields {
		if f[1] != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", f[0], f[1])
		}
	}
}

// Success печатает статус операции в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

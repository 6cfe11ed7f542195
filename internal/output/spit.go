// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/apex/log"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v2"

	"github.com/staranto/cellcachego/internal/attrs"
	"github.com/staranto/cellcachego/internal/config"
	"github.com/staranto/cellcachego/internal/filters"
)

// ErrNoMatch is returned when --query selects nothing from the dataset.
var ErrNoMatch = errors.New("query matched nothing")

// Dataset is a report to be rendered. Columns fixes the order of the text
// table; rows may carry keys that are not columns.
type Dataset struct {
	Columns []string
	Rows    []map[string]interface{}
}

// DumpExamples renders a table of example command usages.
func DumpExamples(w io.Writer, examples [][2]string) {
	if len(examples) == 0 {
		return
	}
	if w == nil {
		w = os.Stdout
	}

	var rows [][]string
	for _, ex := range examples {
		rows = append(rows, []string{ex[0], ex[1]})
	}

	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		Headers("Command", "Description").
		BorderHeader(false).
		Rows(rows...)

	fmt.Fprintln(w, t)
}

// SliceDiceSpit filters, sorts, projects, queries and renders a dataset
// according to the command's --filter, --sort, --attrs, --query and --output
// flags.
func SliceDiceSpit(ds Dataset, cmd *cli.Command, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}

	raw, err := json.Marshal(ds.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	// If raw, just dump it and go home.
	output := cmd.String("output")
	if output == "raw" {
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}

	al := attrs.New(ds.Columns...)
	if err := al.Set(cmd.String("attrs")); err != nil {
		return err
	}
	al.SetGlobalTransformSpec()

	rows := filters.FilterDataset(gjson.ParseBytes(raw), al.Keys(), cmd.String("filter"))
	SortDataset(rows, cmd.String("sort"))
	columns, rows := al.Project(rows)

	if q := cmd.String("query"); q != "" {
		return spitQuery(rows, columns, q, cmd, w)
	}

	switch output {
	case "json":
		jsonOutput, err := json.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal json: %w", err)
		}
		_, err = fmt.Fprintln(w, string(jsonOutput))
		return err
	case "yaml":
		yamlOutput, err := yaml.Marshal(rows)
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(yamlOutput)
		return err
	default:
		TableWriter(rows, columns, cmd, w)
		return nil
	}
}

// spitQuery applies a gjson path to the prepared rows and renders whatever it
// selects. Arrays of objects stay tabular in text output; anything else is
// printed as a scalar.
func spitQuery(rows []map[string]interface{}, columns []string, q string, cmd *cli.Command, w io.Writer) error {
	doc, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	res := gjson.GetBytes(doc, q)
	if !res.Exists() {
		return fmt.Errorf("%w: %s", ErrNoMatch, q)
	}
	log.Debugf("query %q selected %d bytes", q, len(res.Raw))

	switch cmd.String("output") {
	case "json":
		_, err := fmt.Fprintln(w, res.Raw)
		return err
	case "yaml":
		yamlOutput, err := yaml.Marshal(res.Value())
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(yamlOutput)
		return err
	}

	if selected, ok := objectRows(res); ok {
		TableWriter(selected, columns, cmd, w)
		return nil
	}
	_, err = fmt.Fprintln(w, res.String())
	return err
}

// objectRows returns res as rows when it is an array of objects, or a single
// object.
func objectRows(res gjson.Result) ([]map[string]interface{}, bool) {
	var items []gjson.Result
	switch {
	case res.IsObject():
		items = []gjson.Result{res}
	case res.IsArray():
		items = res.Array()
	default:
		return nil, false
	}

	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		m, ok := item.Value().(map[string]interface{})
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

// TableWriter renders the result set in a tabular form honoring color,
// titles and padding options. Columns absent from every row are skipped.
func TableWriter(
	resultSet []map[string]interface{},
	columns []string,
	cmd *cli.Command,
	w io.Writer) {

	if len(resultSet) == 0 {
		return
	}

	var present []string
	for _, c := range columns {
		for _, row := range resultSet {
			if _, ok := row[c]; ok {
				present = append(present, c)
				break
			}
		}
	}

	var (
		headerStyle  = lipgloss.NewStyle().Align(lipgloss.Left)
		cellStyle    = lipgloss.NewStyle().Padding(0, 0).Align(lipgloss.Left)
		evenRowStyle = cellStyle
		oddRowStyle  = cellStyle
	)

	if cmd.Bool("color") && isTerminal(w) {
		headerColor, evenColor, oddColor := getColors("colors")

		headerStyle = headerStyle.Foreground(lipgloss.Color(headerColor))
		evenRowStyle = evenRowStyle.Foreground(lipgloss.Color(evenColor))
		oddRowStyle = oddRowStyle.Foreground(lipgloss.Color(oddColor))
	}

	rows := make([][]string, 0, len(resultSet))
	for _, result := range resultSet {
		row := make([]string, 0, len(present))
		for _, c := range present {
			row = append(row, InterfaceToString(result[c], "-"))
		}
		rows = append(rows, row)
	}

	pad, _ := config.GetInt("padding", 2)
	log.Debugf("padding: %v", pad)

	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			var style lipgloss.Style
			switch {
			case row == table.HeaderRow:
				style = headerStyle
			case row%2 == 0:
				style = evenRowStyle
			default:
				style = oddRowStyle
			}

			if col > 0 {
				style = style.PaddingLeft(pad)
			}

			return style
		}).
		Headers().
		Rows(rows...)

	if cmd.Bool("titles") {
		// https://github.com/charmbracelet/lipgloss/issues/261
		t = t.Headers(present...).BorderHeader(false)
	}
	fmt.Fprintln(w, t)
}

// isTerminal reports whether w is a terminal. Color is never written to pipes
// or buffers.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// getColors returns configured color values for table rendering.
func getColors(key string) (header string, even string, odd string) {
	header, _ = config.GetString(fmt.Sprintf("%s.title", key), "#f6be00")
	even, _ = config.GetString(fmt.Sprintf("%s.even", key), "#ffffff")
	odd, _ = config.GetString(fmt.Sprintf("%s.odd", key), "#00c8f0")
	return
}

// InterfaceToString converts supported primitive or composite values to a
// string. A custom empty value may be provided for nil and empty strings.
func InterfaceToString(value interface{}, emptyValue ...string) string {
	if len(emptyValue) == 0 {
		emptyValue = []string{""}
	}

	if s, ok := value.(string); value == nil || ok && s == "" {
		return emptyValue[0]
	}

	switch value := value.(type) {
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		// Everything we report is a count or a byte size.
		return fmt.Sprintf("%.0f", value)
	case bool:
		return strconv.FormatBool(value)
	default:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(jsonBytes)
	}
}

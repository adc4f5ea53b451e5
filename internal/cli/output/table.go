package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that can render as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes a borderless left-aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, row := range data.Rows() {
		table.Append(row)
	}

	table.Render()
	return nil
}

// KeyValues renders one record as a two-column NAME/VALUE table, in the
// order the pairs were added.
type KeyValues struct {
	pairs [][2]string
}

// Add appends one row.
func (kv *KeyValues) Add(name, value string) {
	kv.pairs = append(kv.pairs, [2]string{name, value})
}

// Headers implements TableRenderer.
func (kv *KeyValues) Headers() []string { return []string{"FIELD", "VALUE"} }

// Rows implements TableRenderer.
func (kv *KeyValues) Rows() [][]string {
	rows := make([][]string, 0, len(kv.pairs))
	for _, p := range kv.pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return rows
}

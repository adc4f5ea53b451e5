package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{" table ", FormatTable, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"box_id": "box-1"}))
	assert.Contains(t, buf.String(), `"box_id": "box-1"`)
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, map[string]string{"box_id": "box-1"}))
	assert.Contains(t, buf.String(), "box_id: box-1")
}

func TestPrintTable(t *testing.T) {
	kv := &KeyValues{}
	kv.Add("box_id", "box-1")
	kv.Add("locked", "yes")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, kv))

	out := buf.String()
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "box-1")
	assert.Contains(t, out, "locked")
}

func TestPrintFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, FormatTable, map[string]int{"size": 7}))
	assert.True(t, strings.Contains(buf.String(), `"size": 7`))
}

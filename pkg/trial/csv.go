package trial

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const lineTerminator = "\r\n"

// ToCSV renders trials as a flat, comma delimited export.
//
// The header is the union of all trial keys in first-seen order. Every
// cell is double quoted, with embedded quotes doubled. Keys that a trial
// does not set render as empty cells, nil values render as null, and
// composite values are JSON encoded. Rows are terminated by CRLF, so an
// export with no trials is a single empty header line.
func ToCSV(trials []Trial) (string, error) {
	var columns []string
	seen := make(map[string]struct{})
	for _, t := range trials {
		for _, k := range t.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			columns = append(columns, k)
		}
	}

	var sb strings.Builder
	writeRow(&sb, columns)

	cells := make([]string, len(columns))
	for i, t := range trials {
		for j, col := range columns {
			v, ok := t.values[col]
			if !ok {
				cells[j] = ""
				continue
			}

			s, err := formatValue(v)
			if err != nil {
				return "", errors.Wrapf(err, "failed to format trial %d column %q", i, col)
			}
			cells[j] = s
		}
		writeRow(&sb, cells)
	}

	return sb.String(), nil
}

func writeRow(sb *strings.Builder, cells []string) {
	for i, c := range cells {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(c, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteString(lineTerminator)
}

func formatValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return formatFloat(t), nil
	case float32:
		return formatFloat(float64(t)), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), nil
	default:
		b, err := encodeJSON(t)
		if err != nil {
			return "", errors.Wrap(err, "failed to encode value")
		}
		return string(b), nil
	}
}

// formatFloat follows the number formatting used by browsers, so values
// recorded client side and values recorded here export identically.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	if abs := math.Abs(f); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return trimExponent(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// trimExponent drops the zero padding Go adds to exponents (1e-07 -> 1e-7).
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}

	digits := strings.TrimLeft(s[i+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return s[:i+2] + digits
}

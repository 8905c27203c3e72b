package merge

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"crashpipe/pkg/records"
)

// CSVContentType is stored with the merged object.
const CSVContentType = "text/csv; charset=utf-8"

// WriteCSV writes t with a header row. A table without columns produces no
// output at all.
func WriteCSV(w io.Writer, t records.Table) error {
	if len(t.Columns) == 0 {
		return nil
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	row := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			row[i] = cell(r[c])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	if s, err := encodeJSON(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

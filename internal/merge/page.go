package merge

import (
	"bytes"
	"encoding/json"
	"io"

	"crashpipe/pkg/records"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decompress returns the plain payload of a page. Compression is detected by
// magic bytes; an unrecognised or corrupt stream is returned unchanged.
func decompress(b []byte) []byte {
	switch {
	case bytes.HasPrefix(b, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return b
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return b
		}
		return out
	case bytes.HasPrefix(b, zstdMagic):
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return b
		}
		defer zr.Close()
		out, err := zr.DecodeAll(b, nil)
		if err != nil {
			return b
		}
		return out
	}
	return b
}

// DecodePage parses one raw page into a table. The payload may be gzip or
// zstd compressed and holds either a JSON array of flat objects or an object
// with the array under "data". Columns keep first-seen order. A payload that
// is not valid JSON yields an empty table and ok=false.
func DecodePage(raw []byte) (t records.Table, ok bool) {
	body := decompress(raw)
	if !gjson.ValidBytes(body) {
		return t, false
	}
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		root = root.Get("data")
	}
	if !root.IsArray() {
		return t, false
	}
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		rec := records.Record{}
		item.ForEach(func(k, v gjson.Result) bool {
			name := k.String()
			t.AddColumn(name)
			rec[name] = value(v)
			return true
		})
		t.Rows = append(t.Rows, rec)
		return true
	})
	return t, true
}

// value keeps numbers as their literal text so ids and codes survive to the
// CSV without float formatting.
func value(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.Number:
		return json.Number(v.Raw)
	case gjson.String:
		return v.String()
	}
	return v.Value()
}

package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/specialistvlad/tilestackgo/internal/failure"
)

// Fixed column names of the acquisition table. Every other column is read as
// a band asset column.
const (
	ColTileCode  = "tile_code"
	ColID        = "id"
	ColTimestamp = "timestamp"
	ColBaseline  = "processing_baseline"
)

// TableFile is the conventional table name inside the dataset directory.
const TableFile = "tiles.parquet"

// ReadTable loads the flat acquisition table. Any failure to open or decode
// it is a ConfigError.
func ReadTable(ctx context.Context, path string) ([]Acquisition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Config("read acquisition table", err)
	}
	defer f.Close()

	tbl, err := pqarrow.ReadTable(ctx, f, nil, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, failure.Config("read acquisition table", fmt.Errorf("%s: %w", path, err))
	}
	defer tbl.Release()

	schema := tbl.Schema()
	for _, name := range []string{ColTileCode, ColID, ColTimestamp} {
		if len(schema.FieldIndices(name)) == 0 {
			return nil, failure.Configf("read acquisition table", "%s: missing column %q", path, name)
		}
	}

	var out []Acquisition
	tr := array.NewTableReader(tbl, 4096)
	defer tr.Release()
	for tr.Next() {
		recs, err := decodeRecord(tr.Record())
		if err != nil {
			return nil, failure.Config("read acquisition table", fmt.Errorf("%s: %w", path, err))
		}
		out = append(out, recs...)
	}
	if err := tr.Err(); err != nil {
		return nil, failure.Config("read acquisition table", fmt.Errorf("%s: %w", path, err))
	}
	return out, nil
}

func decodeRecord(rec arrow.Record) ([]Acquisition, error) {
	n := int(rec.NumRows())
	out := make([]Acquisition, n)
	for i := range out {
		out[i].Assets = make(map[string]string)
	}

	for c, field := range rec.Schema().Fields() {
		col := rec.Column(c)
		if field.Name == ColTimestamp {
			if ts, ok := col.(*array.Timestamp); ok {
				unit := ts.DataType().(*arrow.TimestampType).Unit
				for i := 0; i < n; i++ {
					if !ts.IsNull(i) {
						out[i].Timestamp = ts.Value(i).ToTime(unit).UTC()
					}
				}
				continue
			}
		}

		values, err := stringColumn(col)
		if err != nil {
			if !isFixedColumn(field.Name) {
				// Derived columns such as day_of_year carry no asset.
				continue
			}
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		for i, s := range values {
			switch field.Name {
			case ColTileCode:
				out[i].TileCode = s
			case ColID:
				out[i].ID = s
			case ColBaseline:
				out[i].Baseline = s
			case ColTimestamp:
				ts, err := ParseTimestamp(s)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", i, err)
				}
				out[i].Timestamp = ts
			default:
				if s != "" {
					out[i].Assets[field.Name] = s
				}
			}
		}
	}
	return out, nil
}

func isFixedColumn(name string) bool {
	switch name {
	case ColTileCode, ColID, ColTimestamp, ColBaseline:
		return true
	}
	return false
}

// stringColumn returns the column values with nulls as empty strings.
func stringColumn(col arrow.Array) ([]string, error) {
	out := make([]string, col.Len())
	switch a := col.(type) {
	case *array.String:
		for i := range out {
			if !a.IsNull(i) {
				out[i] = a.Value(i)
			}
		}
	case *array.LargeString:
		for i := range out {
			if !a.IsNull(i) {
				out[i] = a.Value(i)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported type %s", col.DataType())
	}
	return out, nil
}

// WriteTable stores records as the flat acquisition table with one asset
// column per band, in the given band order.
func WriteTable(path string, records []Acquisition, bands []string) error {
	fields := []arrow.Field{
		{Name: ColTileCode, Type: arrow.BinaryTypes.String},
		{Name: ColID, Type: arrow.BinaryTypes.String},
		{Name: ColTimestamp, Type: arrow.BinaryTypes.String},
		{Name: ColBaseline, Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, b := range bands {
		fields = append(fields, arrow.Field{Name: b, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	str := func(i int) *array.StringBuilder { return b.Field(i).(*array.StringBuilder) }
	for _, r := range records {
		str(0).Append(r.TileCode)
		str(1).Append(r.ID)
		str(2).Append(r.Timestamp.UTC().Format(time.RFC3339Nano))
		appendOptional(str(3), r.Baseline)
		for j, band := range bands {
			appendOptional(str(4+j), r.Assets[band])
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	return writeParquet(path, schema, rec)
}

func appendOptional(b *array.StringBuilder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.Append(s)
}

func writeParquet(path string, schema *arrow.Schema, rec arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return fmt.Errorf("open parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	// Close also closes the underlying file.
	return fw.Close()
}

// Bands returns the sorted union of asset names over records.
func Bands(records []Acquisition) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		for b := range r.Assets {
			set[b] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

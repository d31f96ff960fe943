package tilestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
)

// Record is one metadata row, in the order the acquisition appears in the
// arrays.
type Record struct {
	TileCode  string            `json:"tile_code"`
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	DayOfYear uint16            `json:"day_of_year"`
	Baseline  string            `json:"processing_baseline,omitempty"`
	Assets    map[string]string `json:"assets"`
}

// writeMetadataJSON writes one JSON object per line.
func writeMetadataJSON(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadMetadataJSON decodes the newline-delimited metadata side table.
func ReadMetadataJSON(r io.Reader) ([]Record, error) {
	var out []Record
	dec := json.NewDecoder(r)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decode metadata row %d: %w", len(out), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func metadataSchema(bands []string) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "tile_code", Type: arrow.BinaryTypes.String},
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_us},
		{Name: "day_of_year", Type: arrow.PrimitiveTypes.Uint16},
		{Name: "processing_baseline", Type: arrow.BinaryTypes.String, Nullable: true},
	}
	for _, b := range bands {
		fields = append(fields, arrow.Field{Name: b, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// writeMetadataParquet writes the same rows as metadata.json with one asset
// column per band.
func writeMetadataParquet(w io.Writer, records []Record, bands []string) error {
	schema := metadataSchema(bands)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	str := func(i int) *array.StringBuilder { return b.Field(i).(*array.StringBuilder) }
	ts := b.Field(2).(*array.TimestampBuilder)
	doy := b.Field(3).(*array.Uint16Builder)
	for _, r := range records {
		str(0).Append(r.TileCode)
		str(1).Append(r.ID)
		ts.AppendTime(r.Timestamp)
		doy.Append(r.DayOfYear)
		appendNullable(str(4), r.Baseline)
		for j, band := range bands {
			appendNullable(str(5+j), r.Assets[band])
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("open parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func appendNullable(b *array.StringBuilder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.Append(s)
}

package batch

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/segmentio/parquet-go"
)

type recordWriter interface {
	Write(rec *OutputRecord) error
	Close() error
}

type jsonlWriter struct {
	buf *bufio.Writer
	enc *json.Encoder
}

func newJSONLWriter(w io.Writer) *jsonlWriter {
	buf := bufio.NewWriter(w)
	return &jsonlWriter{buf: buf, enc: json.NewEncoder(buf)}
}

func (w *jsonlWriter) Write(rec *OutputRecord) error {
	return w.enc.Encode(rec)
}

func (w *jsonlWriter) Close() error {
	return w.buf.Flush()
}

type parquetWriter struct {
	w *parquet.GenericWriter[OutputRecord]
}

func newParquetWriter(w io.Writer) *parquetWriter {
	return &parquetWriter{w: parquet.NewGenericWriter[OutputRecord](w)}
}

func (w *parquetWriter) Write(rec *OutputRecord) error {
	_, err := w.w.Write([]OutputRecord{*rec})
	return err
}

func (w *parquetWriter) Close() error {
	return w.w.Close()
}

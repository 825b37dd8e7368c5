package journal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID            string `parquet:"name=id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	User          string `parquet:"name=user, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ActionType    int32  `parquet:"name=action_type, type=INT32"`
	Action        string `parquet:"name=action, type=UTF8, encoding=PLAIN_DICTIONARY"`
	DataHash      string `parquet:"name=data_hash, type=UTF8, encoding=PLAIN_DICTIONARY"`
	AnchoredAt    int64  `parquet:"name=anchored_at, type=INT64"`
	SchemaVersion int32  `parquet:"name=schema_version, type=INT32"`
	RecordedAt    string `parquet:"name=recorded_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

// ExportParquet writes the entries matching filter to path and returns the
// number of rows written.
func (j *Journal) ExportParquet(ctx context.Context, path string, filter Filter) (int, error) {
	entries, err := j.Query(ctx, filter)
	if err != nil {
		return 0, err
	}
	if err := WriteParquet(path, entries); err != nil {
		return 0, err
	}
	j.logger.Info("journal exported", "path", path, "rows", len(entries))
	return len(entries), nil
}

// WriteParquet writes entries as a snappy-compressed Parquet file.
func WriteParquet(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		row := &parquetRow{
			ID:            entry.ID.String(),
			User:          entry.User,
			ActionType:    int32(entry.ActionType),
			Action:        entry.Action,
			DataHash:      entry.DataHash,
			AnchoredAt:    int64(entry.AnchoredAt),
			SchemaVersion: int32(entry.SchemaVersion),
			RecordedAt:    entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("journal: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("journal: close parquet file: %w", err)
	}
	return nil
}

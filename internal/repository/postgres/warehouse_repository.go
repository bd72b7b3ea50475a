package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mimic/business/contrast"
	"mimic/business/exampledata"
	"mimic/business/inference"
	"mimic/business/partition"
	"mimic/business/records"
	"mimic/domain"

	"gorm.io/gorm"
)

const insertBatchSize = 500

// WarehouseRepository reads and writes the log-odds tables. A TableRef's
// Schema is the postgres schema the table lives in.
type WarehouseRepository struct {
	DB *gorm.DB
}

var (
	_ records.WarehouseReader       = (*WarehouseRepository)(nil)
	_ inference.WarehouseRepository = (*WarehouseRepository)(nil)
	_ contrast.WarehouseRepository  = (*WarehouseRepository)(nil)
	_ exampledata.TableWriter       = (*WarehouseRepository)(nil)
)

func NewWarehouseRepository(db *gorm.DB) *WarehouseRepository {
	return &WarehouseRepository{DB: db}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualified(ref domain.TableRef) string {
	return quoteIdent(ref.Schema) + "." + quoteIdent(ref.Table)
}

// ReadPartition returns the rows of one partition and split, ordered by the
// partition column and then by physical row order. An empty column list
// selects every column.
func (r *WarehouseRepository) ReadPartition(ctx context.Context, ref domain.TableRef, spec domain.PartitionSpec, columns []string) (domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("context error: %w", err)
	}

	where, args, err := partition.Where(spec, domain.ColumnTrain)
	if err != nil {
		return domain.Table{}, err
	}

	tx := r.DB.WithContext(ctx).Table(ref.String()).Where(where, args...)
	if len(columns) > 0 {
		tx = tx.Select(columns)
	}
	rows, err := tx.Order(quoteIdent(spec.Column) + ", ctid").Rows()
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to query %s: %w", ref, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to read columns of %s: %w", ref, err)
	}

	table := domain.Table{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Table{}, fmt.Errorf("failed to scan %s: %w", ref, err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("failed to iterate %s: %w", ref, err)
	}
	return table, nil
}

// WriteRows replaces the rows of ref matching key with rows, in one
// transaction. The table is created from the first row when missing. A nil
// key replaces the whole table.
func (r *WarehouseRepository) WriteRows(ctx context.Context, ref domain.TableRef, columns []string, key map[string]any, rows []domain.Row) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := ensureTable(tx, ref, columns, rows[0]); err != nil {
				return err
			}
		} else if !tx.Migrator().HasTable(ref.String()) {
			return nil
		}

		del, args := deleteStatement(ref, key)
		if err := tx.Exec(del, args...).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", ref, err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]map[string]any, len(rows))
		for i, row := range rows {
			m := make(map[string]any, len(columns))
			for _, c := range columns {
				m[c] = row[c]
			}
			batch[i] = m
		}
		if err := tx.Table(ref.String()).CreateInBatches(batch, insertBatchSize).Error; err != nil {
			return fmt.Errorf("failed to insert into %s: %w", ref, err)
		}
		return nil
	})
}

func deleteStatement(ref domain.TableRef, key map[string]any) (string, []any) {
	stmt := "DELETE FROM " + qualified(ref)
	if len(key) == 0 {
		return stmt, nil
	}

	names := make([]string, 0, len(key))
	for k := range key {
		names = append(names, k)
	}
	sort.Strings(names)

	conds := make([]string, len(names))
	args := make([]any, len(names))
	for i, k := range names {
		conds[i] = quoteIdent(k) + " = ?"
		args[i] = key[k]
	}
	return stmt + " WHERE " + strings.Join(conds, " AND "), args
}

func ensureTable(tx *gorm.DB, ref domain.TableRef, columns []string, sample domain.Row) error {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quoteIdent(c) + " " + sqlType(sample[c])
	}

	if err := tx.Exec("CREATE SCHEMA IF NOT EXISTS " + quoteIdent(ref.Schema)).Error; err != nil {
		return fmt.Errorf("failed to create schema %s: %w", ref.Schema, err)
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qualified(ref), strings.Join(defs, ", "))
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", ref, err)
	}
	return nil
}

func sqlType(v any) string {
	switch v.(type) {
	case bool:
		return "BOOLEAN"
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return "BIGINT"
	case float32, float64:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

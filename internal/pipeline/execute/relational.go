// internal/pipeline/execute/relational.go
package execute

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"nlquery-agent/internal/common/database"
	"nlquery-agent/internal/models"
)

// RelationalExecutor hands the artifact to the driver as one statement.
type RelationalExecutor struct {
	client   *database.RelationalClient
	readOnly bool
}

func NewRelationalExecutor(client *database.RelationalClient, readOnly bool) *RelationalExecutor {
	return &RelationalExecutor{client: client, readOnly: readOnly}
}

func (e *RelationalExecutor) Execute(ctx context.Context, artifact models.GeneratedArtifact) models.ExecutionOutcome {
	if e.readOnly {
		if err := CheckReadOnly(artifact.Source); err != nil {
			return models.ErrorOutcome(err.Error())
		}
	}

	result, err := e.query(ctx, artifact.Source)
	if err != nil {
		return models.ErrorOutcome(err.Error())
	}
	return result
}

func (e *RelationalExecutor) query(ctx context.Context, statement string) (models.ExecutionOutcome, error) {
	if e.readOnly && e.client.Dialect.SupportsReadOnlyTx() {
		tx, err := e.client.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return models.ExecutionOutcome{}, fmt.Errorf("begin read-only transaction: %w", err)
		}
		// nothing is ever committed
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, statement)
		if err != nil {
			return models.ExecutionOutcome{}, err
		}
		return collect(rows)
	}

	rows, err := e.client.DB.QueryContext(ctx, statement)
	if err != nil {
		return models.ExecutionOutcome{}, err
	}
	return collect(rows)
}

// collect reads every row. One row with one column is a scalar.
func collect(rows *sql.Rows) (models.ExecutionOutcome, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return models.ExecutionOutcome{}, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		types = nil
	}

	records := make([]models.Record, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return models.ExecutionOutcome{}, err
		}

		record := make(models.Record, len(columns))
		for i, col := range columns {
			record[col] = normalizeValue(values[i], typeName(types, i))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return models.ExecutionOutcome{}, err
	}

	if len(records) == 1 && len(columns) == 1 {
		return models.ScalarOutcome(records[0][columns[0]]), nil
	}
	return models.RowsOutcome(records), nil
}

func typeName(types []*sql.ColumnType, i int) string {
	if i >= len(types) || types[i] == nil {
		return ""
	}
	return strings.ToUpper(types[i].DatabaseTypeName())
}

// normalizeValue turns driver-specific representations into plain values.
func normalizeValue(v interface{}, dbType string) interface{} {
	switch t := v.(type) {
	case []byte:
		return normalizeText(string(t), t, dbType)
	case [16]byte:
		return uuid.UUID(t).String()
	case string:
		return normalizeText(t, nil, dbType)
	}
	return v
}

func normalizeText(s string, raw []byte, dbType string) interface{} {
	switch dbType {
	case "NUMERIC", "DECIMAL":
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case "UUID":
		if len(raw) == 16 {
			if id, err := uuid.FromBytes(raw); err == nil {
				return id.String()
			}
		}
	}
	return s
}

// IsRejection reports whether an outcome message came from the read-only guard.
func IsRejection(message string) bool {
	return strings.HasPrefix(message, ErrStatementRejected.Error())
}

package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Diagnostics is the loggable view of an error chain.
type Diagnostics struct {
	Message string
	Code    Code
	Chain   []string
	PG      *PGDetails
}

// PGDetails carries the postgres fields of a driver error, from either pgx or
// lib/pq.
type PGDetails struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

func Diagnose(err error) Diagnostics {
	if err == nil {
		return Diagnostics{}
	}
	d := Diagnostics{Message: err.Error()}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.PG = pgDetails(err)
	return d
}

func pgDetails(err error) *PGDetails {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return &PGDetails{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PGDetails{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}
	}
	return nil
}

// LogFields flattens the diagnostics into logger fields, skipping empty
// postgres attributes.
func (d Diagnostics) LogFields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if d.PG == nil {
		return fields
	}
	for key, val := range map[string]string{
		"pg_code":       d.PG.Code,
		"pg_constraint": d.PG.Constraint,
		"pg_table":      d.PG.Table,
		"pg_column":     d.PG.Column,
		"pg_detail":     d.PG.Detail,
		"pg_message":    d.PG.Message,
	} {
		if val != "" {
			fields[key] = val
		}
	}
	return fields
}

package database

import (
	"fmt"
	"strings"

	"arblog/internal/model"
)

// whereClause renders the filter as a WHERE clause with positional arguments.
func whereClause(f model.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ID != nil {
		add("id = $%d", *f.ID)
	}
	if !f.From.IsZero() {
		add(`"timestamp" >= $%d`, f.From)
	}
	if !f.To.IsZero() {
		add(`"timestamp" < $%d`, f.To)
	}
	if f.Executed != nil {
		add("COALESCE(executed, FALSE) = $%d", *f.Executed)
	}
	if f.BaseToken != "" {
		add("base_token = $%d", f.BaseToken)
	}
	if f.MinProfit.Valid {
		add("profit_usdt >= $%d::numeric", f.MinProfit.Decimal.String())
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func selectQuery(f model.Filter) (string, []any) {
	where, args := whereClause(f)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectColumns)
	sb.WriteString(" FROM ")
	sb.WriteString(model.TableName)
	sb.WriteString(where)
	if f.Descending {
		sb.WriteString(" ORDER BY id DESC")
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func statsQuery(f model.Filter) (string, []any) {
	where, args := whereClause(f)
	return "SELECT " + statsColumns + " FROM " + model.TableName + where, args
}

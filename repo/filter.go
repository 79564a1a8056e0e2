package repo

import (
	"fmt"
	"strings"

	"outreach/pkg/goutil"
)

type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

type Op string

const (
	OpEq    Op = "="
	OpNotEq Op = "!="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpLike  Op = "LIKE"
	OpIn    Op = "IN"
)

type Condition struct {
	Field         string
	Op            Op
	Value         interface{}
	NextLogicalOp LogicalOp
}

type Filter struct {
	Conditions []*Condition
	Pagination *Pagination
}

// ToSqlWithArgs renders the filter's conditions as a WHERE fragment.
// Conditions whose value is nil are skipped; a missing NextLogicalOp defaults to AND.
func ToSqlWithArgs(f *Filter) (string, []interface{}) {
	if f == nil {
		return "", nil
	}

	var (
		parts []string
		ops   []LogicalOp
		args  []interface{}
	)
	for _, condition := range f.Conditions {
		if condition == nil || goutil.IsNil(condition.Value) {
			continue
		}

		switch condition.Op {
		case OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte, OpLike:
			parts = append(parts, fmt.Sprintf("%s %s ?", condition.Field, condition.Op))
		case OpIn:
			parts = append(parts, fmt.Sprintf("%s IN (?)", condition.Field))
		default:
			continue
		}
		args = append(args, condition.Value)

		op := condition.NextLogicalOp
		if op == "" {
			op = And
		}
		ops = append(ops, op)
	}

	var sb strings.Builder
	for i, part := range parts {
		if i > 0 {
			sb.WriteString(fmt.Sprintf(" %s ", ops[i-1]))
		}
		sb.WriteString(part)
	}

	return sb.String(), args
}

package repository

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
)

// filterColumns whitelists the keys a dynamic filter may touch and maps
// each to the column it compiles to. Relation paths resolve through the
// listing join (f = form_instances, s = students, u = users).
var filterColumns = map[string]string{
	"status":                "f.status",
	"stage":                 "f.stage",
	"completion":            "f.completion",
	"current_step":          "f.current_step",
	"maximum_step":          "f.maximum_step",
	"created_at":            "f.created_at",
	"updated_at":            "f.updated_at",
	"roll_no":               "f.student_id",
	"student.roll_no":       "f.student_id",
	"student.department_id": "s.department_id",
	"student.batch":         "s.batch",
	"user.first_name":       "u.first_name",
	"user.last_name":        "u.last_name",
	"user.email":            "u.email",
}

var filterOps = map[string]string{
	"=":      "=",
	"!=":     "<>",
	">":      ">",
	">=":     ">=",
	"<":      "<",
	"<=":     "<=",
	"LIKE":   "LIKE",
	"IN":     "IN",
	"NOT IN": "NOT IN",
}

// compileFilters turns a FilterSet into a SQL fragment with positional
// placeholders starting after argOffset. Optional conditions combine with
// the requested operator; mandatory conditions are always ANDed around
// them. An unknown key or operator is a validation error, never SQL.
func compileFilters(set *dto.FilterSet, argOffset int) (string, []interface{}, error) {
	if set == nil || (len(set.Conditions) == 0 && len(set.Mandatory) == 0) {
		return "", nil, nil
	}

	combine := strings.ToUpper(strings.TrimSpace(set.Combine))
	if combine == "" {
		combine = "AND"
	}
	if combine != "AND" && combine != "OR" {
		return "", nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid filter combinator %q", set.Combine))
	}

	var args []interface{}
	build := func(conds []dto.FilterCondition, joiner string) (string, error) {
		parts := make([]string, 0, len(conds))
		for _, c := range conds {
			column, ok := filterColumns[c.Key]
			if !ok {
				return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown filter key %q", c.Key))
			}
			op, ok := filterOps[strings.ToUpper(strings.TrimSpace(c.Op))]
			if !ok {
				return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown filter operator %q", c.Op))
			}

			switch op {
			case "IN", "NOT IN":
				values, err := filterValueList(c.Value)
				if err != nil {
					return "", err
				}
				args = append(args, pq.Array(values))
				// NOT IN must hold against every element, so it
				// quantifies with ALL rather than ANY.
				quant := "= ANY"
				if op == "NOT IN" {
					quant = "<> ALL"
				}
				parts = append(parts, fmt.Sprintf("%s %s($%d)", column, quant, argOffset+len(args)))
			default:
				args = append(args, c.Value)
				parts = append(parts, fmt.Sprintf("%s %s $%d", column, op, argOffset+len(args)))
			}
		}
		if len(parts) == 0 {
			return "", nil
		}
		return "(" + strings.Join(parts, " "+joiner+" ") + ")", nil
	}

	optional, err := build(set.Conditions, combine)
	if err != nil {
		return "", nil, err
	}
	mandatory, err := build(set.Mandatory, "AND")
	if err != nil {
		return "", nil, err
	}

	switch {
	case optional != "" && mandatory != "":
		return "(" + optional + " AND " + mandatory + ")", args, nil
	case optional != "":
		return optional, args, nil
	default:
		return mandatory, args, nil
	}
}

func filterValueList(v interface{}) ([]interface{}, error) {
	switch list := v.(type) {
	case []interface{}:
		if len(list) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "IN filter needs a non-empty list")
		}
		return list, nil
	case []string:
		if len(list) == 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "IN filter needs a non-empty list")
		}
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "IN filter value must be a list")
	}
}

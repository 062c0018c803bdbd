package query

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// SortStable orders records in place by s.Field. Ties keep their prior
// relative order in both directions. A field that no record carries leaves
// the order untouched; a record missing the field sorts as the zero value of
// the field's type.
//
// When values of different kinds share a field, each kind is sorted among
// the positions it already occupies, so kinds never interleave differently
// from the input.
func SortStable(records []Record, s Sort) {
	k := fieldKind(records, s.Field)
	if k == kindNone {
		return
	}

	slots := make(map[kind][]int)
	var order []kind
	for i, r := range records {
		vk := kindOf(valueOr(r, s.Field, k))
		if _, ok := slots[vk]; !ok {
			order = append(order, vk)
		}
		slots[vk] = append(slots[vk], i)
	}

	for _, vk := range order {
		idx := slots[vk]
		group := make([]Record, len(idx))
		for j, i := range idx {
			group[j] = records[i]
		}
		slices.SortStableFunc(group, func(a, b Record) int {
			c := compareValues(valueOr(a, s.Field, k), valueOr(b, s.Field, k))
			if s.Direction == Desc {
				return -c
			}
			return c
		})
		for j, i := range idx {
			records[i] = group[j]
		}
	}
}

// fieldKind reports the kind of the first non-nil value of field.
func fieldKind(records []Record, field string) kind {
	for _, r := range records {
		if v, ok := r[field]; ok && v != nil {
			return kindOf(v)
		}
	}
	return kindNone
}

func valueOr(r Record, field string, k kind) any {
	if v, ok := r[field]; ok && v != nil {
		return v
	}
	switch k {
	case kindNumber:
		return 0.0
	case kindBool:
		return false
	case kindTime:
		return time.Time{}
	case kindList:
		return []string{}
	default:
		return ""
	}
}

// compareValues compares two values of the same kind. Values of different
// kinds compare equal; SortStable never passes it such a pair.
func compareValues(a, b any) int {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return 0
	}
	switch ka {
	case kindNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return cmp.Compare(fa, fb)
	case kindBool:
		return cmp.Compare(boolInt(a.(bool)), boolInt(b.(bool)))
	case kindTime:
		return a.(time.Time).Compare(b.(time.Time))
	default:
		return strings.Compare(strings.ToLower(Text(a)), strings.ToLower(Text(b)))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

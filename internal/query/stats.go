package query

// Aggregation names the fields to summarise over the filtered set.
type Aggregation struct {
	Numeric     []string `json:"numeric,omitempty"`
	Categorical []string `json:"categorical,omitempty"`
}

// NumericSummary aggregates one numeric field. Records whose value is not a
// number are skipped.
type NumericSummary struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Stats summarises a filtered set independently of pagination.
type Stats struct {
	Total       int                       `json:"total"`
	Numeric     map[string]NumericSummary `json:"numeric,omitempty"`
	Categorical map[string]map[string]int `json:"categorical,omitempty"`
}

// Aggregate computes agg over records.
func Aggregate(records []Record, agg Aggregation) Stats {
	st := Stats{Total: len(records)}

	if len(agg.Numeric) > 0 {
		st.Numeric = make(map[string]NumericSummary, len(agg.Numeric))
		for _, field := range agg.Numeric {
			st.Numeric[field] = summarise(records, field)
		}
	}

	if len(agg.Categorical) > 0 {
		st.Categorical = make(map[string]map[string]int, len(agg.Categorical))
		for _, field := range agg.Categorical {
			counts := make(map[string]int)
			for _, r := range records {
				v, ok := r[field]
				if !ok || v == nil {
					continue
				}
				if elems, isList := elements(v); isList {
					for _, e := range elems {
						counts[normEnum(e)]++
					}
					continue
				}
				counts[normEnum(Text(v))]++
			}
			st.Categorical[field] = counts
		}
	}
	return st
}

func summarise(records []Record, field string) NumericSummary {
	var s NumericSummary
	for _, r := range records {
		f, ok := toFloat(r[field])
		if !ok {
			continue
		}
		if s.Count == 0 || f < s.Min {
			s.Min = f
		}
		if s.Count == 0 || f > s.Max {
			s.Max = f
		}
		s.Count++
		s.Sum += f
	}
	if s.Count > 0 {
		s.Avg = s.Sum / float64(s.Count)
	}
	return s
}

// Count returns how many records had field equal to value.
func (s Stats) Count(field, value string) int {
	return s.Categorical[field][normEnum(value)]
}

// Sum returns the sum of a numeric field, or 0 when it was not aggregated.
func (s Stats) Sum(field string) float64 {
	return s.Numeric[field].Sum
}

// Avg returns the mean of a numeric field, or 0 when it was not aggregated.
func (s Stats) Avg(field string) float64 {
	return s.Numeric[field].Avg
}

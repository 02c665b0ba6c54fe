package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/finpulse/finpulse/internal/domain"
)

// DiffStates computes field-level changes between two states. Both values
// are normalized through JSON so any serializable type can be compared.
// Keys starting with "_" are bookkeeping and are skipped.
func DiffStates(previous, next any) []domain.FieldChange {
	var changes []domain.FieldChange
	diffValue("", normalize(previous), normalize(next), &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Field < changes[j].Field })
	return changes
}

// FormatDiff renders changes as one "field: old -> new" line each.
func FormatDiff(changes []domain.FieldChange) string {
	if len(changes) == 0 {
		return ""
	}
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, fmt.Sprintf("%s: %s -> %s", c.Field, renderValue(c.OldValue), renderValue(c.NewValue)))
	}
	return strings.Join(lines, "\n")
}

func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

func diffValue(path string, prev, next any, out *[]domain.FieldChange) {
	prevMap, prevIsMap := prev.(map[string]any)
	nextMap, nextIsMap := next.(map[string]any)
	if prevIsMap && nextIsMap {
		diffMaps(path, prevMap, nextMap, out)
		return
	}
	if equalValues(prev, next) {
		return
	}
	field := path
	if field == "" {
		field = "(root)"
	}
	*out = append(*out, domain.FieldChange{Field: field, OldValue: prev, NewValue: next})
}

func diffMaps(path string, prev, next map[string]any, out *[]domain.FieldChange) {
	keys := make(map[string]bool, len(prev)+len(next))
	for k := range prev {
		keys[k] = true
	}
	for k := range next {
		keys[k] = true
	}
	for k := range keys {
		if strings.HasPrefix(k, "_") {
			continue
		}
		child := k
		if path != "" {
			child = path + "." + k
		}
		diffValue(child, prev[k], next[k], out)
	}
}

func equalValues(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

func renderValue(v any) string {
	if v == nil {
		return "<nil>"
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

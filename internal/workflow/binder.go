package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholders are "{{ref}}" tokens where ref is either a task id
// (resolves to that task's whole output) or "taskId.field" (resolves
// to one key of a map-shaped output). Launch inputs are exposed under
// the reserved id "input".
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_-]+(?:\.[a-zA-Z0-9_-]+)*)\s*\}\}`)

// BindParams resolves every placeholder in params against the outputs
// of completed tasks. A reference to an output that does not exist
// (failed sibling, unknown task, missing field) is a ParamBindingError
// for the task being dispatched; params with no placeholders pass
// through untouched.
func BindParams(taskID string, params map[string]any, outputs map[string]any) (map[string]any, error) {
	if len(params) == 0 {
		return map[string]any{}, nil
	}
	bound := make(map[string]any, len(params))
	for name, value := range params {
		v, err := bindValue(taskID, value, outputs)
		if err != nil {
			return nil, err
		}
		bound[name] = v
	}
	return bound, nil
}

func bindValue(taskID string, value any, outputs map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		return bindString(taskID, v, outputs)
	case map[string]any:
		nested := make(map[string]any, len(v))
		for k, inner := range v {
			bv, err := bindValue(taskID, inner, outputs)
			if err != nil {
				return nil, err
			}
			nested[k] = bv
		}
		return nested, nil
	case []any:
		nested := make([]any, len(v))
		for i, inner := range v {
			bv, err := bindValue(taskID, inner, outputs)
			if err != nil {
				return nil, err
			}
			nested[i] = bv
		}
		return nested, nil
	default:
		return value, nil
	}
}

func bindString(taskID, s string, outputs map[string]any) (any, error) {
	matches := placeholderRe.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// A string that is exactly one placeholder resolves to the typed
	// value; placeholders embedded in longer text interpolate.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		return resolveRef(taskID, s[matches[0][2]:matches[0][3]], outputs)
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		v, err := resolveRef(taskID, s[m[2]:m[3]], outputs)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "%v", v)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func resolveRef(taskID, ref string, outputs map[string]any) (any, error) {
	parts := strings.Split(ref, ".")
	v, ok := outputs[parts[0]]
	if !ok {
		return nil, &Error{
			Code:    CodeParamBinding,
			TaskID:  taskID,
			Message: fmt.Sprintf("placeholder %q references task %q which has no committed output", ref, parts[0]),
		}
	}
	for _, field := range parts[1:] {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, &Error{
				Code:    CodeParamBinding,
				TaskID:  taskID,
				Message: fmt.Sprintf("placeholder %q indexes into a non-map output of task %q", ref, parts[0]),
			}
		}
		v, ok = m[field]
		if !ok {
			return nil, &Error{
				Code:    CodeParamBinding,
				TaskID:  taskID,
				Message: fmt.Sprintf("placeholder %q: field %q not present in output of task %q", ref, field, parts[0]),
			}
		}
	}
	return v, nil
}

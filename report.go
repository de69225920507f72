package doclink

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/jward/doclink/internal/scan"
)

// UnknownStep is reported when a raw error does not name the scan step
// that failed.
const UnknownStep = "unknown step"

// maxUnwrapDepth bounds how far nested err wrappers are followed.
const maxUnwrapDepth = 32

// ReportedError is the uniform shape every scan or fetch failure is
// normalized to before it reaches a Listener.
type ReportedError struct {
	Step      string        `json:"step"`
	Message   string        `json:"message"`
	Stack     string        `json:"stack,omitempty"`
	Locations []DocLocation `json:"locations,omitempty"`
}

func (r ReportedError) Error() string {
	return r.Step + ": " + r.Message
}

// NormalizeErrors turns raw into a list of reported errors. raw may be a
// single error value or a slice of them. It never panics and every record
// has a Message.
func NormalizeErrors(raw any) []ReportedError {
	switch v := raw.(type) {
	case []any:
		out := make([]ReportedError, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeError(item))
		}
		return out
	case []error:
		out := make([]ReportedError, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeError(item))
		}
		return out
	case []map[string]any:
		out := make([]ReportedError, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeError(item))
		}
		return out
	case []string:
		out := make([]ReportedError, 0, len(v))
		for _, item := range v {
			out = append(out, NormalizeError(item))
		}
		return out
	}
	return []ReportedError{NormalizeError(raw)}
}

// NormalizeError converts one raw error into a ReportedError.
//
// A *scan.Error is replaced by its payload. A string becomes the message.
// For a map, the step comes from "step" (rendered like a message when it
// is not a string), the message from "msg" or from
// the innermost "err" wrapper, and code reader failures get their
// documentation locations flattened out of err.reader.references.
func NormalizeError(raw any) (rep ReportedError) {
	defer func() {
		if r := recover(); r != nil {
			rep = ReportedError{Step: UnknownStep, Message: fmt.Sprintf("unreadable error: %v", r)}
		}
	}()

	raw = unwrapScanError(raw)
	rep.Step = UnknownStep

	obj, ok := raw.(map[string]any)
	if !ok {
		rep.Message = messageOf(raw)
		return rep
	}

	switch step := obj["step"].(type) {
	case nil:
	case string:
		if step != "" {
			rep.Step = step
		}
	default:
		rep.Step = messageOf(step)
	}
	switch {
	case hasKey(obj, "msg"):
		rep.Message = messageOf(obj["msg"])
	case hasKey(obj, "err"):
		subErrMessage(obj["err"], &rep, 0)
	default:
		rep.Message = dump(obj)
	}
	if rep.Step == scan.StepCode {
		rep.Locations = codeReaderLocations(obj)
	}
	if rep.Message == "" {
		rep.Message = dump(obj)
	}
	return rep
}

func unwrapScanError(raw any) any {
	for i := 0; i < maxUnwrapDepth; i++ {
		se, ok := raw.(*scan.Error)
		if !ok || se == nil {
			return raw
		}
		raw = se.Payload
	}
	return raw
}

// subErrMessage follows nested err wrappers down to the innermost one and
// takes its message and stack.
func subErrMessage(v any, rep *ReportedError, depth int) {
	v = unwrapScanError(v)
	obj, ok := v.(map[string]any)
	if !ok {
		rep.Message = messageOf(v)
		return
	}
	if hasKey(obj, "err") && depth < maxUnwrapDepth {
		subErrMessage(obj["err"], rep, depth+1)
		return
	}
	if stack, ok := obj["stack"].(string); ok {
		rep.Stack = stack
	}
	if hasKey(obj, "msg") {
		rep.Message = messageOf(obj["msg"])
		return
	}
	rep.Message = dump(obj)
}

// codeReaderLocations flattens err.reader.references[*].loc[*] into
// locations, visiting references in id order.
func codeReaderLocations(obj map[string]any) []DocLocation {
	errObj, _ := obj["err"].(map[string]any)
	reader, _ := errObj["reader"].(map[string]any)
	refs, _ := reader["references"].(map[string]any)
	if len(refs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var locs []DocLocation
	for _, id := range ids {
		ref, _ := refs[id].(map[string]any)
		list, _ := ref["loc"].([]any)
		for _, item := range list {
			l, ok := item.(map[string]any)
			if !ok {
				continue
			}
			file, _ := l["file"].(string)
			locs = append(locs, DocLocation{File: file, Line: toInt(l["line"])})
		}
	}
	return locs
}

func messageOf(v any) string {
	switch m := v.(type) {
	case nil:
		return "undefined error message"
	case string:
		return m
	case error:
		if isNilPointer(m) {
			return "undefined error message"
		}
		return m.Error()
	case fmt.Stringer:
		if isNilPointer(m) {
			return "undefined error message"
		}
		return m.String()
	case map[string]any, []any:
		return dump(m)
	default:
		return fmt.Sprintf("%v", m)
	}
}

// dump renders a value as indented JSON. Values encoding/json rejects,
// such as cyclic maps, are described by type only.
func dump(v any) string {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Sprintf("unprintable %T error", v)
	}
	return string(b)
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	cue "cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrorDetail is a single humanized schema violation.
type CueErrorDetail struct {
	Path    string // ingest.threads.file
	Code    string // missing_required | unknown_field | type_mismatch | conflicting_values | invalid_enum | validation_error
	Message string
	Pos     CueErrorPosition
	Raw     string
}

// Attr returns the detail as a slog group.
func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

var (
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed  = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reExpectedGot = regexp.MustCompile(`(?i)expected .* got .*`)
	reEnum        = regexp.MustCompile(`(?i)must be one of|expected one of`)
	reIndex       = regexp.MustCompile(`\.\d+\.`)
)

// enumPaths are schema fields whose allowed values are listed in messages.
// List indexes are normalized to "*".
var enumPaths = map[string]string{
	"ingest.mode":         "#Mode",
	"data_sources.*.type": "#DataSourceType",
}

// CueErrDetails turns a LoadConfig validation error into one detail per
// offending path and position.
func CueErrDetails(err error) []CueErrorDetail {
	return humanize(err, schema)
}

func humanize(err error, root cue.Value) []CueErrorDetail {
	if err == nil {
		return nil
	}

	type key struct {
		path string
		pos  CueErrorPosition
	}
	seen := make(map[key]struct{})

	var out []CueErrorDetail
	for _, e := range cueerrors.Errors(err) {
		raw, args := e.Msg()
		path := normalizePath(e.Path())
		code, msg := classify(fmt.Sprintf(raw, args...), path, root)

		k := key{path: path, pos: position(e)}
		if _, ok := seen[k]; ok {
			continue
		}

		if code == "conflicting_values" || code == "invalid_enum" {
			if values := allowedValues(path); len(values) > 0 {
				msg += fmt.Sprintf(": possible values (%s)", strings.Join(values, ","))
			}
		}

		out = append(out, CueErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     k.pos,
			Raw:     e.Error(),
		})
		seen[k] = struct{}{}
	}
	return out
}

func allowedValues(path string) []string {
	key := reIndex.ReplaceAllString("."+path+".", ".*.")
	key = strings.Trim(key, ".")
	def, ok := enumPaths[key]
	if !ok {
		return nil
	}
	values, dflt := enumStrings(definitions.LookupPath(cue.ParsePath(def)))
	if dflt != nil {
		values = append(values, "default "+*dflt)
	}
	return values
}

func valueToString(v cue.Value) string {
	s, err := valueToStringE(v)
	if err != nil {
		return "E: " + err.Error()
	}
	return s
}

func valueToStringE(v cue.Value) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(i, 10), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func enumStrings(v cue.Value) (values []string, def *string) {
	if d, ok := v.Default(); ok {
		if s, err := d.String(); err == nil {
			def = &s
		}
	}
	op, args := v.Expr()
	if op != cue.OrOp {
		if v.Kind() == cue.StringKind {
			values = append(values, valueToString(v))
		}
		return
	}
	seen := map[string]struct{}{}
	for _, a := range args {
		if a.Kind() != cue.StringKind {
			continue
		}
		s := valueToString(a)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			values = append(values, s)
		}
	}
	return
}

func position(err cueerrors.Error) CueErrorPosition {
	for _, r := range cueerrors.Positions(err) {
		if r.Filename() == "" {
			continue
		}
		return CueErrorPosition{
			Filename: r.Filename(),
			Line:     r.Line(),
			Column:   r.Column(),
		}
	}
	return CueErrorPosition{}
}

func normalizePath(p []string) string {
	if len(p) == 0 {
		return ""
	}
	if strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string, root cue.Value) (code, msg string) {
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("Field %s is not allowed", last(path))
	case reIncomplete.MatchString(raw):
		if defined(root, path) {
			return "missing_required", fmt.Sprintf("Field %s is required", last(path))
		}
		return "missing_required", fmt.Sprintf("Field %s is required and must be non-empty", last(path))
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("Conflicting values for %s", last(path))
	case reEnum.MatchString(raw):
		return "invalid_enum", fmt.Sprintf("Field %s has invalid value", last(path))
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", fmt.Sprintf("Field %s has wrong type/value", last(path))
	default:
		return "validation_error", raw
	}
}

func defined(root cue.Value, path string) bool {
	if path == "" || strings.ContainsAny(path, "0123456789") {
		return false
	}
	return root.LookupPath(cue.ParsePath(path)).Exists()
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Package batchfile reads task batches from JSON.
//
// A batch is an array whose items are either objects
//
//	{"namespace": "isolated_benchmark", "callable": "py_factorial", "args": [10]}
//
// or three-element tuples
//
//	["isolated_benchmark", "py_factorial", [10]]
//
// Integral numbers become int64, other numbers float64.
package batchfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/utkarsh5026/isopool/isolate"
)

const schemaURL = "https://isopool.local/batch.schema.json"

//go:embed schema.json
var schemaJSON string

// ValidationError describes one place where a batch file does not match
// the batch schema.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Load reads and parses the batch file at path.
func Load(path string) ([]isolate.TaskSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	batch, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("batch file %s: %w", path, err)
	}
	return batch, nil
}

// Parse validates the JSON document read from r against the batch schema and
// converts it to task specs.
func Parse(r io.Reader) ([]isolate.TaskSpec, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode: trailing data after batch")
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, schemaErrors(err)
	}

	items := doc.([]any)
	batch := make([]isolate.TaskSpec, len(items))
	for i, item := range items {
		spec, err := toTask(item)
		if err != nil {
			return nil, &ValidationError{Path: fmt.Sprintf("[%d]", i), Err: err}
		}
		batch[i] = spec
	}
	return batch, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func toTask(item any) (isolate.TaskSpec, error) {
	switch v := item.(type) {
	case map[string]any:
		spec := isolate.TaskSpec{
			Namespace: v["namespace"].(string),
			Callable:  v["callable"].(string),
		}
		if args, ok := v["args"].([]any); ok {
			spec.Args = convertAll(args)
		}
		return spec, nil

	case []any:
		spec := isolate.TaskSpec{
			Namespace: v[0].(string),
			Callable:  v[1].(string),
		}
		if len(v) == 3 {
			spec.Args = convertAll(v[2].([]any))
		}
		return spec, nil
	}
	return isolate.TaskSpec{}, fmt.Errorf("unexpected item of type %T", item)
}

func convertAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = convert(v)
	}
	return out
}

// convert replaces json.Number with int64 or float64, recursively.
func convert(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []any:
		return convertAll(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = convert(e)
		}
		return out
	default:
		return v
	}
}

func schemaErrors(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}

	var errs []error
	collectSchemaErrors(ve, &errs)
	if len(errs) == 0 {
		return &ValidationError{Err: errors.New(ve.Message)}
	}
	return errors.Join(errs...)
}

func collectSchemaErrors(err *jsonschema.ValidationError, errs *[]error) {
	if len(err.Causes) == 0 {
		*errs = append(*errs, &ValidationError{
			Path: jsonPointerToPath(err.InstanceLocation),
			Err:  errors.New(err.Message),
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}

func jsonPointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(strings.TrimPrefix(ptr, "#"), "/")
	if ptr == "" {
		return ""
	}

	var b bytes.Buffer
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		if idx, err := strconv.Atoi(part); err == nil {
			fmt.Fprintf(&b, "[%d]", idx)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

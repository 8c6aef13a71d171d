// Package inputs resolves a task's own arguments inside a Batch worker.
//
// The submitter stages a JSON array of argument objects and points
// BATCHKIT_ARGS_PATH at it; the Batch service gives every task its index in
// BATCH_TASK_INDEX. This package reverses the convention: fetch the array,
// take the entry at the task's index, decode it into the caller's struct.
// When no argument file is staged, arguments fall back to --key value pairs
// on the command line.
package inputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/perfpod/batchkit/internal/objstore"
)

const (
	// ArgsPathEnv holds the URI of the staged task-arguments file.
	ArgsPathEnv = "BATCHKIT_ARGS_PATH"
	// TaskIndexEnv is set by the Batch service on every task.
	TaskIndexEnv = "BATCH_TASK_INDEX"
)

// ErrNoArguments means neither a staged arguments file nor command-line
// arguments were available.
var ErrNoArguments = errors.New("inputs: no " + ArgsPathEnv + " set and no destination to parse arguments into")

// TaskArguments decodes this task's arguments into dst, a pointer to a struct
// with JSON field tags. It prefers the staged file named by BATCHKIT_ARGS_PATH
// and falls back to parsing the process command line.
func TaskArguments(ctx context.Context, dst any) error {
	if path := os.Getenv(ArgsPathEnv); path != "" {
		entry, err := indexedEntry(ctx, path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(entry, dst); err != nil {
			return fmt.Errorf("inputs: decode task entry: %w", err)
		}
		return nil
	}
	if dst == nil {
		return ErrNoArguments
	}
	return FromArgs(os.Args[1:], dst)
}

// RawTaskArguments returns this task's staged arguments without a schema.
func RawTaskArguments(ctx context.Context) (map[string]any, error) {
	path := os.Getenv(ArgsPathEnv)
	if path == "" {
		return nil, ErrNoArguments
	}
	entry, err := indexedEntry(ctx, path)
	if err != nil {
		return nil, err
	}
	var args map[string]any
	if err := json.Unmarshal(entry, &args); err != nil {
		return nil, fmt.Errorf("inputs: decode task entry: %w", err)
	}
	return args, nil
}

// indexedEntry fetches the arguments array and picks this task's element.
func indexedEntry(ctx context.Context, path string) (json.RawMessage, error) {
	idxStr, ok := os.LookupEnv(TaskIndexEnv)
	if !ok {
		return nil, fmt.Errorf("inputs: %s is set but %s is not", ArgsPathEnv, TaskIndexEnv)
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return nil, fmt.Errorf("inputs: invalid %s %q: %w", TaskIndexEnv, idxStr, err)
	}

	data, err := objstore.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("inputs: fetch %s: %w", path, err)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("inputs: %s is not a JSON array: %w", path, err)
	}
	if idx < 0 || idx >= len(entries) {
		return nil, fmt.Errorf("inputs: task index %d out of range, %s has %d entries", idx, path, len(entries))
	}
	return entries[idx], nil
}

// FromArgs decodes --key value (or --key=value) pairs into dst by its JSON
// field names. Each value is converted according to the matching field's
// type: numeric and boolean fields parse their values, everything else is
// taken as a string. Bare flags become true.
func FromArgs(args []string, dst any) error {
	kinds := fieldKinds(dst)
	vals := map[string]json.RawMessage{}
	for i := 0; i < len(args); {
		tok := args[i]
		if !strings.HasPrefix(tok, "--") {
			return fmt.Errorf("inputs: unexpected argument %q", tok)
		}
		key := strings.TrimPrefix(tok, "--")
		val := "true"
		if k, v, found := strings.Cut(key, "="); found {
			key, val = k, v
			i++
		} else if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			val = args[i+1]
			i += 2
		} else {
			i++
		}
		enc, err := encodeValue(key, val, kinds[key])
		if err != nil {
			return err
		}
		vals[key] = enc
	}

	blob, err := json.Marshal(vals)
	if err != nil {
		return fmt.Errorf("inputs: encode arguments: %w", err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return fmt.Errorf("inputs: decode arguments: %w", err)
	}
	return nil
}

// fieldKinds maps dst's JSON field names to their kinds so values convert by
// the field's type rather than by whatever the value happens to look like.
func fieldKinds(dst any) map[string]reflect.Kind {
	kinds := map[string]reflect.Kind{}
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return kinds
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			if n, _, _ := strings.Cut(tag, ","); n != "" {
				if n == "-" {
					continue
				}
				name = n
			}
		}
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		kinds[name] = ft.Kind()
	}
	return kinds
}

func encodeValue(key, v string, kind reflect.Kind) (json.RawMessage, error) {
	switch kind {
	case reflect.Bool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("inputs: invalid value %q for --%s: %w", v, key, err)
		}
		return json.RawMessage(strconv.FormatBool(b)), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("inputs: invalid value %q for --%s: %w", v, key, err)
		}
		return json.RawMessage(strconv.FormatInt(n, 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("inputs: invalid value %q for --%s: %w", v, key, err)
		}
		return json.RawMessage(strconv.FormatUint(n, 10)), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("inputs: invalid value %q for --%s: %w", v, key, err)
		}
		return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64)), nil
	default:
		// Unknown keys and everything non-scalar ride along as strings.
		quoted, _ := json.Marshal(v)
		return quoted, nil
	}
}

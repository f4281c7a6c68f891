package config

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// OverlayEvaluator runs manifest overlay scripts. The script receives the
// decoded manifest as a dict named "manifest" and rewrites it by mutating
// the dict in place. A module global cannot shadow and read the predeclared
// name at the same time, so in-place mutation is the supported shape.
// Evaluation is time-bounded so a runaway script cannot hang the run.
type OverlayEvaluator struct {
	timeout time.Duration
}

// NewOverlayEvaluator creates an evaluator. A zero timeout uses 30 seconds.
func NewOverlayEvaluator(timeout time.Duration) *OverlayEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OverlayEvaluator{timeout: timeout}
}

// Evaluate executes the overlay script against the raw manifest document and
// returns the rewritten document.
func (oe *OverlayEvaluator) Evaluate(ctx context.Context, script string, manifest map[string]interface{}) (map[string]interface{}, error) {
	evalCtx, cancel := context.WithTimeout(ctx, oe.timeout)
	defer cancel()

	resultCh := make(chan *OverlayResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := oe.evaluateSync(script, manifest)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("overlay evaluation timed out after %v", oe.timeout)
	case err := <-errCh:
		return nil, err
	case result := <-resultCh:
		out, ok := result.Output["manifest"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("overlay must export a manifest dict")
		}
		return out, nil
	}
}

func (oe *OverlayEvaluator) evaluateSync(script string, manifest map[string]interface{}) (*OverlayResult, error) {
	started := time.Now()

	thread := &starlark.Thread{
		Name: "rigup-overlay",
		Print: func(_ *starlark.Thread, msg string) {
			// Overlay scripts are config, not programs; print goes nowhere.
		},
	}

	manifestVal, err := toStarlarkValue(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to convert manifest: %w", err)
	}

	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"manifest": manifestVal,
	}

	globals, err := starlark.ExecFile(thread, "overlay.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("overlay execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	// In-place mutations of the predeclared manifest dict are the rewritten
	// document unless the script exported its own.
	if _, ok := output["manifest"]; !ok {
		rewritten, err := fromStarlarkValue(manifestVal)
		if err != nil {
			return nil, fmt.Errorf("failed to convert manifest: %w", err)
		}
		output["manifest"] = rewritten
	}

	return &OverlayResult{
		Output:        output,
		ExecutionTime: time.Since(started),
	}, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value back to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

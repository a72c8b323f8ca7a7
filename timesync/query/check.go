/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package query

import (
	"fmt"
	"math"

	"github.com/Knetic/govaluate"
	"github.com/eclesh/welford"
	"golang.org/x/exp/slices"
)

// CheckHelp describes what check expressions may use
const CheckHelp = `Expression which must hold for the run to succeed, e.g. "abs(mean(offset)) < 50 && percentile(delay, 99) < 100".
supported variables:
  offset (list of offsets, ms)
  delay (list of round trip times, ms)
  sent, received (number of probes)
  loss (percent of probes without response)
supported functions:
  abs(value), mean(values), stddev(values), min(values), max(values), percentile(values, p)`

var checkVariables = map[string]bool{
	"offset":   true,
	"delay":    true,
	"sent":     true,
	"received": true,
	"loss":     true,
}

func listArg(name string, args []interface{}, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%s: wrong number of arguments: want %d, got %d", name, n, len(args))
	}
	vals, ok := args[0].([]float64)
	if !ok {
		return nil, fmt.Errorf("%s: first argument must be a list", name)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: no values", name)
	}
	return vals, nil
}

func welfordOf(vals []float64) *welford.Stats {
	s := welford.New()
	for _, v := range vals {
		s.Add(v)
	}
	return s
}

var checkFunctions = map[string]govaluate.ExpressionFunction{
	"abs": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs: wrong number of arguments: want 1, got %d", len(args))
		}
		val, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("abs: argument must be a number")
		}
		return math.Abs(val), nil
	},
	"mean": func(args ...interface{}) (interface{}, error) {
		vals, err := listArg("mean", args, 1)
		if err != nil {
			return nil, err
		}
		return welfordOf(vals).Mean(), nil
	},
	"stddev": func(args ...interface{}) (interface{}, error) {
		vals, err := listArg("stddev", args, 1)
		if err != nil {
			return nil, err
		}
		if len(vals) < 2 {
			return 0.0, nil
		}
		return welfordOf(vals).Stddev(), nil
	},
	"min": func(args ...interface{}) (interface{}, error) {
		vals, err := listArg("min", args, 1)
		if err != nil {
			return nil, err
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		vals, err := listArg("max", args, 1)
		if err != nil {
			return nil, err
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	},
	"percentile": func(args ...interface{}) (interface{}, error) {
		vals, err := listArg("percentile", args, 2)
		if err != nil {
			return nil, err
		}
		p, ok := args[1].(float64)
		if !ok || p < 0 || p > 100 {
			return nil, fmt.Errorf("percentile: second argument must be between 0 and 100")
		}
		return percentile(vals, p), nil
	},
}

// percentile uses nearest rank
func percentile(vals []float64, p float64) float64 {
	sorted := append([]float64(nil), vals...)
	slices.Sort(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Check is a compiled check expression
type Check struct {
	expr *govaluate.EvaluableExpression
}

// NewCheck compiles expression
func NewCheck(expression string) (*Check, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(expression, checkFunctions)
	if err != nil {
		return nil, err
	}
	for _, v := range expr.Vars() {
		if !checkVariables[v] {
			return nil, fmt.Errorf("unsupported variable %q", v)
		}
	}
	return &Check{expr: expr}, nil
}

func checkParameters(results []Result) map[string]interface{} {
	offsets := []float64{}
	delays := []float64{}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		offsets = append(offsets, r.Offset)
		delays = append(delays, r.Delay)
	}
	s := &Summary{Sent: len(results), Received: len(offsets)}
	return map[string]interface{}{
		"offset":   offsets,
		"delay":    delays,
		"sent":     float64(s.Sent),
		"received": float64(s.Received),
		"loss":     s.Loss(),
	}
}

// Eval evaluates the check against results
func (c *Check) Eval(results []Result) (bool, error) {
	res, err := c.expr.Evaluate(checkParameters(results))
	if err != nil {
		return false, err
	}
	ok, isBool := res.(bool)
	if !isBool {
		return false, fmt.Errorf("expression returned %v, not a boolean", res)
	}
	return ok, nil
}

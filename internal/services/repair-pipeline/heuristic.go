// internal/services/repair-pipeline/heuristic.go
package repairpipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	ErrHeuristicTransform = errors.New("HEURISTIC_TRANSFORM_FAILED")
	ErrHeuristicParse     = errors.New("HEURISTIC_PARSE_FAILED")
	errTrailingData       = errors.New("trailing data after JSON value")
	errUnsafeEscape       = errors.New("backslash before comma is not repaired locally")
)

// unsafeEscape makes jsonrepair v0.2.3 re-parse a string forever: the escape
// consumes the comma its retry is told to stop at. Such input goes to Tier 2.
const unsafeEscape = `\,`

// RepairHeuristic is Tier 1. It never calls out of process. Input that is
// already valid JSON is decoded as-is without passing through the repairer.
func RepairHeuristic(text string) HeuristicOutcome {
	if json.Valid([]byte(text)) {
		if v, err := decodeJSON(text); err == nil {
			return repaired(v)
		}
	}

	if strings.Contains(text, unsafeEscape) {
		return needsFallback(fmt.Errorf("%w: %v", ErrHeuristicTransform, errUnsafeEscape))
	}

	fixed, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return needsFallback(fmt.Errorf("%w: %v", ErrHeuristicTransform, err))
	}

	v, err := decodeJSON(fixed)
	if err != nil {
		return needsFallback(fmt.Errorf("%w: %v", ErrHeuristicParse, err))
	}
	return repaired(v)
}

// decodeJSON parses exactly one JSON value. Numbers stay json.Number so
// they are written back with their original digits.
func decodeJSON(text string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

// Package opset adapts a recorded execution trace (per-operator tensor
// sizes and measured times, as triosim's sample traces carry) into
// concrete ffsim.Op values and an ffsim.Model. Where triosim replays a
// trace directly against a fixed hardware platform, opset's TracedOp
// feeds the same recorded numbers through ffsim's cost oracle so a
// strategy search can ask "what if this trace ran under a different
// parallel strategy" instead of only replaying the strategy it was
// captured under.
package opset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tensorCategory mirrors triosim's TensorType, trimmed to the categories
// that change how a tensor is wired into the operator graph: a weight has
// no producer op, everything else does (or is a model input).
type tensorCategory int

const (
	categoryOther tensorCategory = iota
	categoryWeight
)

var categoryByCSVName = map[string]tensorCategory{
	"weight":       categoryWeight,
	"total_weight": categoryWeight,
	"bias":         categoryWeight,
	"running_mean": categoryWeight,
	"running_var":  categoryWeight,
	"mean":         categoryWeight,
}

// tensorRecord is one row of tensor.csv: a tensor's id, byte size, and
// category.
type tensorRecord struct {
	id       string
	bytes    uint64
	category tensorCategory
}

// layerRecord is one row of trace.csv: one operator's measured execution,
// identified by id/name/stage, with its input/output tensor ids and the
// time it took.
type layerRecord struct {
	id         int
	name       string
	stage      string // "forward" or "backward"
	inputIDs   []string
	outputIDs  []string
	timeInSec  float64
}

// LoadTrace reads tensor.csv and trace.csv from dir, in the layout
// triosim's sample_trace directories use, and returns the parsed layer
// records plus the tensor table needed to resolve their byte sizes and
// categories.
func LoadTrace(dir string) ([]layerRecord, map[string]tensorRecord, error) {
	tensors, err := readTensors(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opset: reading tensor.csv: %w", err)
	}

	layers, err := readLayers(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("opset: reading trace.csv: %w", err)
	}

	return layers, tensors, nil
}

func readTensors(dir string) (map[string]tensorRecord, error) {
	records, err := readCSV(dir, "tensor.csv")
	if err != nil {
		return nil, err
	}

	out := make(map[string]tensorRecord, len(records))
	for _, row := range records {
		id := row[1]
		size, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("tensor %s: bad size %q: %w", id, row[3], err)
		}
		elemBytes, err := strconv.Atoi(row[4])
		if err != nil {
			return nil, fmt.Errorf("tensor %s: bad element size %q: %w", id, row[4], err)
		}

		out[id] = tensorRecord{
			id:       id,
			bytes:    uint64(size * elemBytes),
			category: categoryByCSVName[row[5]],
		}
	}
	return out, nil
}

func readLayers(dir string) ([]layerRecord, error) {
	records, err := readCSV(dir, "trace.csv")
	if err != nil {
		return nil, err
	}

	out := make([]layerRecord, 0, len(records))
	for _, row := range records {
		id, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("layer row %v: bad id: %w", row, err)
		}
		timeInSec, err := strconv.ParseFloat(row[5], 64)
		if err != nil {
			return nil, fmt.Errorf("layer %s: bad time %q: %w", row[1], row[5], err)
		}

		out = append(out, layerRecord{
			id:        id,
			name:      row[1],
			inputIDs:  splitTensorList(row[2]),
			outputIDs: splitTensorList(row[3]),
			timeInSec: timeInSec / 1e6, // trace.csv records microseconds
			stage:     row[9],
		})
	}
	return out, nil
}

func readCSV(dir, file string) ([][]string, error) {
	path, err := filepath.Abs(filepath.Join(dir, file))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ','
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[1:], nil // skip header
}

func splitTensorList(s string) []string {
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return nil
	}

	tokens := strings.Split(s, ";")
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = strings.Trim(tok, "'")
	}
	return out
}

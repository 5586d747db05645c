package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"plantguard.io/leaf-doctor/internal/utils"
)

var (
	labelKeys      = []string{"class", "class_name", "label"}
	confidenceKeys = []string{"confidence", "score"}
)

// Normalize reads a stage payload. For the disease stage selector is the
// detected plant type; the leaf-type stage ignores it.
func Normalize(stage Stage, payload []byte, selector string) Normalized {
	switch stage {
	case StageLeafType:
		return NormalizeLeafType(payload)
	case StageDisease:
		return NormalizeDisease(payload, selector)
	default:
		return malformed(fmt.Errorf("%w: unknown stage %q", ErrMalformedResponse, stage))
	}
}

// NormalizeLeafType reads outputs[0].predictions.predictions and returns the
// predictions by descending confidence, keeping input order on ties.
func NormalizeLeafType(payload []byte) Normalized {
	first, found, err := firstOutput(payload)
	if err != nil {
		return malformed(err)
	}
	if !found {
		return empty()
	}

	if isNull(first) {
		return empty()
	}
	var output map[string]json.RawMessage
	if err := json.Unmarshal(first, &output); err != nil {
		return malformed(fmt.Errorf("%w: outputs[0] is not an object", ErrMalformedResponse))
	}

	raw, ok := output["predictions"]
	if !ok || isNull(raw) {
		return empty()
	}

	// Usually {"predictions": {"predictions": [...]}}, sometimes the list itself.
	var nested map[string]json.RawMessage
	if json.Unmarshal(raw, &nested) == nil {
		raw = nested["predictions"]
	}

	preds := parsePredictions(raw)
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})
	return result(preds)
}

// NormalizeDisease prefers "<plantType>_predictions" in outputs[0]. When that
// key is absent or null it concatenates every non-null predictions list in
// document order.
func NormalizeDisease(payload []byte, plantType string) Normalized {
	first, found, err := firstOutput(payload)
	if err != nil {
		return malformed(err)
	}
	if !found {
		return malformed(fmt.Errorf("%w: missing outputs[0]", ErrMalformedResponse))
	}

	fields, err := orderedObject(first)
	if err != nil {
		return malformed(fmt.Errorf("%w: outputs[0] is not an object", ErrMalformedResponse))
	}

	key := plantType + "_predictions"
	for _, f := range fields {
		if f.key == key && !isNull(f.value) {
			return result(predictionsOf(f.value))
		}
	}

	var preds []Prediction
	for _, f := range fields {
		preds = append(preds, predictionsOf(f.value)...)
	}
	return result(preds)
}

// firstOutput returns outputs[0]. A payload that is not an object, or whose
// outputs is not an array, is malformed; a missing or empty outputs is not.
func firstOutput(payload []byte) (json.RawMessage, bool, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil || top == nil {
		return nil, false, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedResponse)
	}

	raw, ok := top["outputs"]
	if !ok || isNull(raw) {
		return nil, false, nil
	}

	var outputs []json.RawMessage
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, false, fmt.Errorf("%w: outputs is not an array", ErrMalformedResponse)
	}
	if len(outputs) == 0 {
		return nil, false, nil
	}
	return outputs[0], true, nil
}

// predictionsOf reads value.predictions when value is an object.
func predictionsOf(value json.RawMessage) []Prediction {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(value, &obj); err != nil || obj == nil {
		return nil
	}
	return parsePredictions(obj["predictions"])
}

func parsePredictions(raw json.RawMessage) []Prediction {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	preds := make([]Prediction, 0, len(items))
	for _, item := range items {
		label := firstString(item, labelKeys)
		if label == "" {
			continue
		}
		preds = append(preds, Prediction{
			Class:      label,
			Confidence: utils.Clamp01(firstNumber(item, confidenceKeys)),
		})
	}
	return preds
}

func firstString(item map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := item[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(item map[string]any, keys []string) float64 {
	for _, k := range keys {
		if f, ok := item[k].(float64); ok {
			return f
		}
	}
	return 0
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type field struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes a JSON object keeping its key order, which a Go map
// would lose.
func orderedObject(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, err
	}
	return fields, nil
}

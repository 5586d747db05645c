// Package inference talks to the leaf-type and disease-detection workflow
// endpoints and turns their loosely shaped JSON into predictions.
package inference

import (
	"errors"
	"strings"
)

var (
	ErrTransport         = errors.New("transport error")
	ErrMalformedResponse = errors.New("malformed response")
)

// UnknownPlantType stands in when the leaf type could not be determined.
const UnknownPlantType = "unknown"

type Stage string

const (
	StageLeafType Stage = "leaf_type"
	StageDisease  Stage = "disease_detection"
)

type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Normalized is the outcome of reading one stage payload. Err is set only when
// Status is StatusMalformed.
type Normalized struct {
	Status      Status
	Predictions []Prediction
	Err         error
}

func result(preds []Prediction) Normalized {
	if len(preds) == 0 {
		return Normalized{Status: StatusEmpty, Predictions: []Prediction{}}
	}
	return Normalized{Status: StatusOK, Predictions: preds}
}

func empty() Normalized {
	return Normalized{Status: StatusEmpty, Predictions: []Prediction{}}
}

func malformed(err error) Normalized {
	return Normalized{Status: StatusMalformed, Predictions: []Prediction{}, Err: err}
}

// PlantTypeFromLabel takes the part of a class label before the first "_",
// so "tomato_healthy" becomes "tomato".
func PlantTypeFromLabel(label string) string {
	plant, _, _ := strings.Cut(strings.TrimSpace(label), "_")
	if plant == "" {
		return UnknownPlantType
	}
	return plant
}

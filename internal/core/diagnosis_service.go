package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"plantguard.io/leaf-doctor/internal/inference"
	"plantguard.io/leaf-doctor/internal/logger"
	"plantguard.io/leaf-doctor/internal/metrics"
	"plantguard.io/leaf-doctor/internal/store"
)

// LeafInference is the pair of remote inference workflows.
type LeafInference interface {
	ClassifyLeaf(ctx context.Context, encodedImage string) ([]byte, error)
	DetectDisease(ctx context.Context, encodedImage, plantType string) ([]byte, error)
}

// ReportCode identifies a degraded path taken during a diagnosis run.
type ReportCode string

const (
	CodeLeafTypeFailed   ReportCode = "leaf_type_failed"
	CodeLeafTypeUnknown  ReportCode = "leaf_type_unknown"
	CodeDiseaseFailed    ReportCode = "disease_detection_failed"
	CodeNoDisease        ReportCode = "no_disease_detected"
	CodeEnrichmentFailed ReportCode = "enrichment_failed"
	CodeRecordFailed     ReportCode = "record_write_failed"
)

// Report stages besides the two inference stages.
const (
	StageEnrichment = "enrichment"
	StagePersist    = "persist"
)

type Report struct {
	Stage   string     `json:"stage"`
	Code    ReportCode `json:"code"`
	Message string     `json:"message"`
	Detail  string     `json:"detail,omitempty"`
	Err     error      `json:"-"`
}

type Diagnosis struct {
	Prediction inference.Prediction `json:"prediction"`
	Summary    Summary              `json:"summary"`
	Rendered   string               `json:"rendered_summary"`
	RecordID   string               `json:"record_id,omitempty"`
}

type DiagnosisResult struct {
	PlantType string      `json:"plant_type"`
	Diagnoses []Diagnosis `json:"diagnoses"`
	Reports   []Report    `json:"reports"`
}

// Has reports whether any report carries the given code.
func (r *DiagnosisResult) Has(code ReportCode) bool {
	for _, rep := range r.Reports {
		if rep.Code == code {
			return true
		}
	}
	return false
}

func (r *DiagnosisResult) report(stage string, code ReportCode, message string, err error) {
	rep := Report{Stage: stage, Code: code, Message: message, Err: err}
	if err != nil {
		rep.Detail = err.Error()
	}
	r.Reports = append(r.Reports, rep)
	logger.Warn("Diagnosis degraded",
		zap.String("stage", stage),
		zap.String("code", string(code)),
		zap.Error(err),
	)
}

// DiagnosisService runs leaf type, disease detection, per-disease enrichment
// and persistence for one upload. Stages run in order and a failure in one
// stage degrades the result instead of aborting the run, except that nothing
// past disease detection runs when that stage fails.
type DiagnosisService struct {
	inference LeafInference
	completer Completer
	records   store.RecordStore
	maxBytes  int64
	now       func() time.Time
}

func NewDiagnosisService(inf LeafInference, completer Completer, records store.RecordStore, maxImageBytes int64) *DiagnosisService {
	return &DiagnosisService{
		inference: inf,
		completer: completer,
		records:   records,
		maxBytes:  maxImageBytes,
		now:       time.Now,
	}
}

// ValidateImage checks size and sniffed content type. Only JPEG and PNG are accepted.
func (s *DiagnosisService) ValidateImage(image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("%w: image is empty", ErrValidation)
	}
	if s.maxBytes > 0 && int64(len(image)) > s.maxBytes {
		return fmt.Errorf("%w: image exceeds %d bytes", ErrValidation, s.maxBytes)
	}
	switch ct := http.DetectContentType(image); ct {
	case "image/jpeg", "image/png":
		return nil
	default:
		return fmt.Errorf("%w: unsupported image type %s", ErrValidation, ct)
	}
}

// Run diagnoses one image. The returned error is non-nil only when the image
// fails validation; every later failure is recorded in the result's Reports.
// When sess is non-nil its last-diagnosis cache is updated.
func (s *DiagnosisService) Run(ctx context.Context, sess *SessionContext, image []byte, user, location string) (*DiagnosisResult, error) {
	if err := s.ValidateImage(image); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(image)
	res := &DiagnosisResult{Diagnoses: []Diagnosis{}, Reports: []Report{}}

	res.PlantType = s.detectPlantType(ctx, res, encoded)

	preds, ok := s.detectDiseases(ctx, res, encoded, res.PlantType)
	if ok {
		for _, p := range preds {
			res.Diagnoses = append(res.Diagnoses, s.enrich(ctx, res, p))
		}
		s.persist(res, user, location)
	}

	if sess != nil {
		sess.recordDiagnosis(res)
	}

	logger.Info("Diagnosis complete",
		zap.String("user", user),
		zap.String("plant_type", res.PlantType),
		zap.Int("diagnoses", len(res.Diagnoses)),
		zap.Int("reports", len(res.Reports)),
	)
	return res, nil
}

func (s *DiagnosisService) detectPlantType(ctx context.Context, res *DiagnosisResult, encoded string) string {
	start := time.Now()
	payload, err := s.inference.ClassifyLeaf(ctx, encoded)
	metrics.StageDuration.WithLabelValues(string(inference.StageLeafType)).Observe(time.Since(start).Seconds())
	if err != nil {
		recordStage(inference.StageLeafType, "error")
		res.report(string(inference.StageLeafType), CodeLeafTypeFailed, "Failed to identify plant type.", err)
		return inference.UnknownPlantType
	}

	norm := inference.NormalizeLeafType(payload)
	recordStage(inference.StageLeafType, norm.Status.String())
	switch norm.Status {
	case inference.StatusMalformed:
		res.report(string(inference.StageLeafType), CodeLeafTypeFailed, "Failed to identify plant type.", norm.Err)
		return inference.UnknownPlantType
	case inference.StatusEmpty:
		res.report(string(inference.StageLeafType), CodeLeafTypeUnknown,
			"Could not identify plant type, continuing with disease detection anyway.", nil)
		return inference.UnknownPlantType
	}
	return inference.PlantTypeFromLabel(norm.Predictions[0].Class)
}

func (s *DiagnosisService) detectDiseases(ctx context.Context, res *DiagnosisResult, encoded, plantType string) ([]inference.Prediction, bool) {
	start := time.Now()
	payload, err := s.inference.DetectDisease(ctx, encoded, plantType)
	metrics.StageDuration.WithLabelValues(string(inference.StageDisease)).Observe(time.Since(start).Seconds())
	if err != nil {
		recordStage(inference.StageDisease, "error")
		res.report(string(inference.StageDisease), CodeDiseaseFailed, "Error occurred during disease detection.", err)
		return nil, false
	}

	norm := inference.NormalizeDisease(payload, plantType)
	recordStage(inference.StageDisease, norm.Status.String())
	switch norm.Status {
	case inference.StatusMalformed:
		res.report(string(inference.StageDisease), CodeDiseaseFailed, "Error occurred during disease detection.", norm.Err)
		return nil, false
	case inference.StatusEmpty:
		res.report(string(inference.StageDisease), CodeNoDisease, "No visible disease was detected on this leaf.", nil)
		return nil, true
	}
	return norm.Predictions, true
}

func (s *DiagnosisService) enrich(ctx context.Context, res *DiagnosisResult, p inference.Prediction) Diagnosis {
	metrics.DiagnosesTotal.WithLabelValues(res.PlantType).Inc()

	var summary Summary
	raw, err := GetDiseaseInfo(ctx, s.completer, p.Class, res.PlantType)
	if err != nil {
		recordStage(StageEnrichment, "error")
		res.report(StageEnrichment, CodeEnrichmentFailed,
			fmt.Sprintf("Disease information is unavailable for %s.", p.Class), err)
	} else {
		recordStage(StageEnrichment, "ok")
		summary = Summarize(raw)
	}
	return Diagnosis{Prediction: p, Summary: summary, Rendered: summary.Render()}
}

// persist writes one record per diagnosis. A failed write does not stop the
// remaining writes; the failures are reported together afterwards.
func (s *DiagnosisService) persist(res *DiagnosisResult, user, location string) {
	if s.records == nil {
		return
	}
	now := s.now()

	var errs []error
	for i := range res.Diagnoses {
		d := &res.Diagnoses[i]
		rec := store.NewDiagnosisRecord(user, res.PlantType, d.Prediction.Class, d.Prediction.Confidence, d.Rendered, location, now)
		if err := s.records.Append(&rec); err != nil {
			metrics.RecordWrites.WithLabelValues("error").Inc()
			errs = append(errs, err)
			continue
		}
		metrics.RecordWrites.WithLabelValues("ok").Inc()
		d.RecordID = rec.ID
	}

	if len(errs) > 0 {
		res.report(StagePersist, CodeRecordFailed,
			fmt.Sprintf("Failed to save %d of %d diagnosis records.", len(errs), len(res.Diagnoses)),
			errors.Join(errs...))
	}
}

func recordStage(stage inference.Stage, status string) {
	metrics.StageOutcomes.WithLabelValues(string(stage), status).Inc()
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Stage tells how far a Record got through the pipeline.
type Stage string

const (
	// StageListing means only listing fields are populated.
	StageListing Stage = "listing"
	// StageComplete means detail fields were merged successfully.
	StageComplete Stage = "complete"
	// StagePartial means the detail pass failed for this record. The record
	// is still written, with PartialReason explaining why.
	StagePartial Stage = "partial"
)

var (
	// ErrEmptyCode is returned when a record would be created without an identifier.
	ErrEmptyCode = errors.New("record code is empty")
	// ErrCodeMismatch is returned when detail fields belong to another record.
	ErrCodeMismatch = errors.New("detail fields belong to a different code")
	// ErrAlreadyMerged is returned when detail fields are merged twice.
	ErrAlreadyMerged = errors.New("record already merged")
)

// ParseWarning records a field that was present but could not be parsed.
// The field is left absent on the record.
type ParseWarning struct {
	Field  string `json:"field"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// Error implements error.
func (w ParseWarning) Error() string {
	return fmt.Sprintf("parse %s %q: %s", w.Field, w.Raw, w.Reason)
}

// Record is one company row. The code is fixed at construction and never
// reassigned; it is the key used to correlate detail pages with listing rows.
type Record struct {
	code string

	Name          string
	ProgressRate  *float64
	DetailURL     string
	PER           *float64
	PBR           *float64
	DividendYield *float64
	SourceURL     string
	Stage         Stage
	PartialReason string
	Warnings      []ParseWarning
}

// NewRecord returns a listing-stage record.
func NewRecord(code, name string) (*Record, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}
	return &Record{
		code:  code,
		Name:  strings.TrimSpace(name),
		Stage: StageListing,
	}, nil
}

// Code returns the stable identifier.
func (r *Record) Code() string {
	return r.code
}

// DetailFields holds the values found on a detail page.
// Code is empty when the page did not identify its company.
type DetailFields struct {
	Code          string
	PER           *float64
	PBR           *float64
	DividendYield *float64
	Warnings      []ParseWarning
}

// MergeDetail copies detail fields into r and marks it complete.
func (r *Record) MergeDetail(f DetailFields) error {
	if f.Code != "" && f.Code != r.code {
		return fmt.Errorf("%w: record %s, page %s", ErrCodeMismatch, r.code, f.Code)
	}
	if r.Stage == StageComplete {
		return fmt.Errorf("%w: %s", ErrAlreadyMerged, r.code)
	}
	r.PER = f.PER
	r.PBR = f.PBR
	r.DividendYield = f.DividendYield
	r.Warnings = append(r.Warnings, f.Warnings...)
	r.Stage = StageComplete
	r.PartialReason = ""
	return nil
}

// MarkPartial flags the record as partial with the given reason.
func (r *Record) MarkPartial(reason string) {
	r.Stage = StagePartial
	r.PartialReason = reason
}

// AddWarning appends a parse warning.
func (r *Record) AddWarning(w ParseWarning) {
	r.Warnings = append(r.Warnings, w)
}

type recordJSON struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	ProgressRate  *float64       `json:"progress_rate"`
	PER           *float64       `json:"per"`
	PBR           *float64       `json:"pbr"`
	DividendYield *float64       `json:"dividend_yield"`
	DetailURL     string         `json:"detail_url"`
	SourceURL     string         `json:"source_url"`
	Stage         Stage          `json:"stage"`
	PartialReason string         `json:"partial_reason,omitempty"`
	Warnings      []ParseWarning `json:"warnings,omitempty"`
}

// MarshalJSON writes absent numeric fields as explicit nulls.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Code:          r.code,
		Name:          r.Name,
		ProgressRate:  r.ProgressRate,
		PER:           r.PER,
		PBR:           r.PBR,
		DividendYield: r.DividendYield,
		DetailURL:     r.DetailURL,
		SourceURL:     r.SourceURL,
		Stage:         r.Stage,
		PartialReason: r.PartialReason,
		Warnings:      r.Warnings,
	})
}

// UnmarshalJSON restores a record, including its code.
func (r *Record) UnmarshalJSON(data []byte) error {
	var v recordJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if strings.TrimSpace(v.Code) == "" {
		return ErrEmptyCode
	}
	*r = Record{
		code:          v.Code,
		Name:          v.Name,
		ProgressRate:  v.ProgressRate,
		PER:           v.PER,
		PBR:           v.PBR,
		DividendYield: v.DividendYield,
		DetailURL:     v.DetailURL,
		SourceURL:     v.SourceURL,
		Stage:         v.Stage,
		PartialReason: v.PartialReason,
		Warnings:      v.Warnings,
	}
	return nil
}

// Float returns a pointer to v. Handy for tests and literals.
func Float(v float64) *float64 {
	return &v
}

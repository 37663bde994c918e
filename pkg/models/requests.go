package models

import (
	"time"

	"github.com/alim08/landing/pkg/validation"
)

// DefaultEventType is stored when a client omits event_type.
const DefaultEventType = "unknown"

// TrackRequest is the body of POST /api/track.
type TrackRequest struct {
	EventType string                 `json:"event_type" validate:"omitempty,eventtype"`
	Meta      map[string]interface{} `json:"meta"`
}

// Sanitize trims input and applies defaults.
func (r *TrackRequest) Sanitize() {
	r.EventType = validation.SanitizeString(r.EventType)
	if r.EventType == "" {
		r.EventType = DefaultEventType
	}
	if r.Meta == nil {
		r.Meta = map[string]interface{}{}
	}
}

// Validate validates the TrackRequest struct
func (r TrackRequest) Validate() error {
	if errs := validation.ValidateStruct(r); len(errs) > 0 {
		return errs
	}
	return nil
}

// EnrichedMeta returns a copy of the client meta with device information
// recorded by the server. Server keys win over client keys.
func (r TrackRequest) EnrichedMeta(userAgent, clientIP string, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(r.Meta)+3)
	for k, v := range r.Meta {
		out[k] = v
	}
	out["user_agent"] = userAgent
	out["client_ip"] = clientIP
	out["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	return out
}

// ConvertRequest is the body of POST /api/convert.
type ConvertRequest struct {
	InputValue string `json:"input_value" validate:"max=512"`
}

func (r *ConvertRequest) Sanitize() {
	r.InputValue = validation.SanitizeString(r.InputValue)
}

func (r ConvertRequest) Validate() error {
	if errs := validation.ValidateStruct(r); len(errs) > 0 {
		return errs
	}
	return nil
}

// LinkInput creates a conversion link.
type LinkInput struct {
	Name      string   `json:"name" validate:"required,max=200"`
	TargetURL string   `json:"target_url" validate:"required,url,max=2048"`
	Weight    *float64 `json:"weight" validate:"omitempty,weight"`
	IsActive  *bool    `json:"is_active"`
}

func (in *LinkInput) Sanitize() {
	in.Name = validation.SanitizeString(in.Name)
	in.TargetURL = validation.SanitizeString(in.TargetURL)
}

func (in LinkInput) Validate() error {
	if errs := validation.ValidateStruct(in); len(errs) > 0 {
		return errs
	}
	return nil
}

// ToLink applies defaults: weight 1.0, active.
func (in LinkInput) ToLink() ConversionLink {
	link := ConversionLink{
		Name:      in.Name,
		TargetURL: in.TargetURL,
		Weight:    1.0,
		IsActive:  true,
	}
	if in.Weight != nil {
		link.Weight = *in.Weight
	}
	if in.IsActive != nil {
		link.IsActive = *in.IsActive
	}
	return link
}

// LinkPatch is a partial update; nil fields are left unchanged.
type LinkPatch struct {
	Name      *string  `json:"name" validate:"omitempty,min=1,max=200"`
	TargetURL *string  `json:"target_url" validate:"omitempty,url,max=2048"`
	Weight    *float64 `json:"weight" validate:"omitempty,weight"`
	IsActive  *bool    `json:"is_active"`
}

func (p *LinkPatch) Sanitize() {
	if p.Name != nil {
		s := validation.SanitizeString(*p.Name)
		p.Name = &s
	}
	if p.TargetURL != nil {
		s := validation.SanitizeString(*p.TargetURL)
		p.TargetURL = &s
	}
}

func (p LinkPatch) Validate() error {
	if errs := validation.ValidateStruct(p); len(errs) > 0 {
		return errs
	}
	return nil
}

// Apply returns link with the patch applied.
func (p LinkPatch) Apply(link ConversionLink) ConversionLink {
	if p.Name != nil {
		link.Name = *p.Name
	}
	if p.TargetURL != nil {
		link.TargetURL = *p.TargetURL
	}
	if p.Weight != nil {
		link.Weight = *p.Weight
	}
	if p.IsActive != nil {
		link.IsActive = *p.IsActive
	}
	return link
}

// TrackingSettingsInput replaces the Google tracking settings. Omitted
// fields are cleared.
type TrackingSettingsInput struct {
	GA4MeasurementID         string `json:"ga4_measurement_id" validate:"max=64"`
	GoogleAdsConversionID    string `json:"google_ads_conversion_id" validate:"max=64"`
	GoogleAdsConversionLabel string `json:"google_ads_conversion_label" validate:"max=128"`
}

func (in *TrackingSettingsInput) Sanitize() {
	in.GA4MeasurementID = validation.SanitizeString(in.GA4MeasurementID)
	in.GoogleAdsConversionID = validation.SanitizeString(in.GoogleAdsConversionID)
	in.GoogleAdsConversionLabel = validation.SanitizeString(in.GoogleAdsConversionLabel)
}

func (in TrackingSettingsInput) Validate() error {
	if errs := validation.ValidateStruct(in); len(errs) > 0 {
		return errs
	}
	return nil
}

func (in TrackingSettingsInput) ToSettings() TrackingSettings {
	return TrackingSettings{
		GA4MeasurementID:         in.GA4MeasurementID,
		GoogleAdsConversionID:    in.GoogleAdsConversionID,
		GoogleAdsConversionLabel: in.GoogleAdsConversionLabel,
	}
}

// LoginRequest carries admin credentials from a form or JSON body.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

func (r LoginRequest) Validate() error {
	if errs := validation.ValidateStruct(r); len(errs) > 0 {
		return errs
	}
	return nil
}

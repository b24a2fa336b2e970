// Package models defines the JSON shapes of API responses.
package models

import (
	"wayfarer.opentransit.org/internal/clock"
)

// ResponseModel is the envelope every endpoint returns.
type ResponseModel struct {
	Code        int         `json:"code"`
	CurrentTime int64       `json:"currentTime"`
	Data        interface{} `json:"data,omitempty"`
	Text        string      `json:"text"`
	Version     int         `json:"version"`
}

// NewResponse builds an envelope with the given status code and text.
func NewResponse(code int, data interface{}, text string, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: c.NowUnixMilli(),
		Data:        data,
		Text:        text,
		Version:     2,
	}
}

// NewOKResponse wraps data in a 200 envelope.
func NewOKResponse(data interface{}, c clock.Clock) ResponseModel {
	return NewResponse(200, data, "OK", c)
}

// NewListResponse wraps a list payload in a 200 envelope.
func NewListResponse(list interface{}, c clock.Clock) ResponseModel {
	return NewOKResponse(map[string]interface{}{"list": list}, c)
}

// NewEntryResponse wraps a single-entry payload in a 200 envelope.
func NewEntryResponse(entry interface{}, c clock.Clock) ResponseModel {
	return NewOKResponse(map[string]interface{}{"entry": entry}, c)
}

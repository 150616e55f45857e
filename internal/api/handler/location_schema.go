package handler

import "time"

type locationRequest struct {
	Lat        float64    `json:"lat"         validate:"latitude"`
	Lng        float64    `json:"lng"         validate:"longitude"`
	AccuracyM  float64    `json:"accuracy_m"  validate:"gte=0"`
	RecordedAt *time.Time `json:"recorded_at"`
}

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

type partialBatchResponse struct {
	Error    string `json:"error"`
	Accepted int    `json:"accepted"`
}

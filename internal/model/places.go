// Package model defines the transient request/response shapes for the gateway.
package model

// AutocompleteRequest is the JSON body sent to the Places autocomplete endpoint.
type AutocompleteRequest struct {
	Input                string   `json:"input"`
	IncludedPrimaryTypes []string `json:"includedPrimaryTypes,omitempty"`
}

// AutocompleteResponse is the upstream Places autocomplete response, reduced to
// the fields requested by the field mask.
type AutocompleteResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestion wraps a single place prediction in the upstream nesting.
type Suggestion struct {
	PlacePrediction PlacePrediction `json:"placePrediction"`
}

// PlacePrediction is the prediction payload inside a suggestion.
type PlacePrediction struct {
	Text    PredictionText `json:"text"`
	PlaceID string         `json:"placeId"`
	Types   []string       `json:"types"`
}

// PredictionText holds the human-readable prediction text.
type PredictionText struct {
	Text string `json:"text"`
}

// Prediction is the flattened legacy shape returned to clients. Field names
// match the pre-migration Places API so downstream consumers are insulated
// from the new suggestion nesting.
type Prediction struct {
	Description string   `json:"description"`
	PlaceID     string   `json:"place_id"`
	Types       []string `json:"types"`
}

// PredictionsEnvelope is the client-facing autocomplete response body.
type PredictionsEnvelope struct {
	Predictions []Prediction `json:"predictions"`
}

package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one classified waste item owned by a single user. ID and ItemHash
// carry the same value: the item is stored under its hash.
type Item struct {
	ID                 string              `json:"id"`
	ItemHash           string              `json:"itemHash"`
	UserID             string              `json:"-"`
	Name               string              `json:"itemName"`
	Description        string              `json:"itemDescription"`
	Photo              string              `json:"itemPhoto"`
	Outcome            string              `json:"itemWinOrLose"`
	RedemptionValue    *decimal.Decimal    `json:"redemptionValue"`
	ConfidenceRating   float64             `json:"confidenceRating"`
	GuidanceParsed     bool                `json:"guidanceParsed"`
	CreatedAt          *time.Time          `json:"createdAt"`
	UserLocation       *Coordinates        `json:"userLocation,omitempty"`
	RecyclingLocations []RecyclingLocation `json:"recyclingLocations"`
}

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RecyclingLocation is a candidate facility returned by place search.
type RecyclingLocation struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"long"`
	Distance  *float64 `json:"distanceFromAddress,omitempty"`
}

// Prediction is a single classifier label with its confidence score.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Outcome categories.
const (
	OutcomeProfitable    = "Profitable"
	OutcomeNonProfitable = "Non-Profitable"
	OutcomeNeutral       = "Neutral"

	// Written by earlier versions of the app.
	OutcomeLegacyWin  = "win"
	OutcomeLegacyLose = "lose"
)

// CanonicalOutcome returns the canonical spelling of s when it names one of
// the known outcome categories (case and surrounding space insensitive).
func CanonicalOutcome(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	for _, o := range []string{OutcomeProfitable, OutcomeNonProfitable, OutcomeNeutral, OutcomeLegacyWin, OutcomeLegacyLose} {
		if strings.EqualFold(trimmed, o) {
			return o, true
		}
	}
	return trimmed, false
}

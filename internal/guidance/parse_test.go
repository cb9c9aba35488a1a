package guidance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashtalkers/trashtalkers/internal/model"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		outcome, value, details string
	}{
		{"Profitable", "0.05", "Return it to a deposit machine."},
		{"Non-Profitable", "-2.50", "Take it to the hazardous waste site.\n\nCall ahead first."},
		{"Neutral", "0", "Place it in the blue bin."},
	}

	for _, tt := range tests {
		g, err := Parse("Cost: " + tt.outcome + "\n\nRedemption Value: " + tt.value + "\n\nDetails: " + tt.details)
		require.NoError(t, err)
		assert.Equal(t, tt.outcome, g.Outcome)
		assert.Equal(t, tt.details, g.Details)
		require.NotNil(t, g.RedemptionValue)
		assert.True(t, g.RedemptionValue.Equal(decimal.RequireFromString(tt.value)), "redemption %s", g.RedemptionValue)
	}
}

func TestParseCanonicalizesOutcome(t *testing.T) {
	g, err := Parse("Cost:  non-profitable \nRedemption Value: -$1.00\nDetails: pay the fee")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNonProfitable, g.Outcome)
	assert.Equal(t, "-1", g.RedemptionValue.String())
}

func TestParseKeepsUnknownOutcomeText(t *testing.T) {
	g, err := Parse("Cost: Free\nRedemption Value: 0\nDetails: curbside")
	require.NoError(t, err)
	assert.Equal(t, "Free", g.Outcome)
}

func TestParseIgnoresPreamble(t *testing.T) {
	g, err := Parse("Sure, here you go.\nCost: Neutral\nRedemption Value: 0\nDetails: compost it")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNeutral, g.Outcome)
	assert.Equal(t, "compost it", g.Details)
}

func TestParseUnreadableAmount(t *testing.T) {
	g, err := Parse("Cost: Neutral\nRedemption Value: varies by state\nDetails: check locally")
	require.NoError(t, err)
	assert.Nil(t, g.RedemptionValue)
	assert.Equal(t, "check locally", g.Details)
}

func TestParseFailures(t *testing.T) {
	inputs := map[string]string{
		"free text":        "Just throw it in the recycling.",
		"missing details":  "Cost: Neutral\nRedemption Value: 0",
		"missing cost":     "Redemption Value: 0\nDetails: x",
		"out of order":     "Details: x\nRedemption Value: 0\nCost: Neutral",
		"markdown labels":  "**Cost**: Neutral\n**Redemption Value**: 0\n**Details**: x",
		"empty cost value": "Cost:\nRedemption Value: 0\nDetails: x",
	}

	for name, in := range inputs {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrUnparsed, name)
	}
}

func TestParseAmount(t *testing.T) {
	tests := map[string]string{
		" 0.05":            "0.05",
		"$0.10 per bottle": "0.1",
		"-$2.50":           "-2.5",
		"$-2.50":           "-2.5",
		"- 3":              "-3",
		"1,250.00 USD":     "1250",
		"+4":               "4",
	}
	for in, want := range tests {
		got := ParseAmount(in)
		if assert.NotNil(t, got, in) {
			assert.Equal(t, want, got.String(), in)
		}
	}

	assert.Nil(t, ParseAmount("none"))
	assert.Nil(t, ParseAmount(""))
}

package usage

import "math"

type chatRate struct {
	promptPer1K     float64
	completionPer1K float64
}

// USD per 1K tokens. Unknown models cost zero but are still counted.
var chatRates = map[string]chatRate{
	"gpt-4o":        {promptPer1K: 0.0025, completionPer1K: 0.01},
	"gpt-4o-mini":   {promptPer1K: 0.00015, completionPer1K: 0.0006},
	"gpt-4-turbo":   {promptPer1K: 0.01, completionPer1K: 0.03},
	"gpt-3.5-turbo": {promptPer1K: 0.0005, completionPer1K: 0.0015},
}

// USD per 1K input characters.
var speechRates = map[string]float64{
	"tts-1":    0.015,
	"tts-1-hd": 0.03,
}

// ChatCost returns the USD cost of a chat call for the given model.
func ChatCost(model string, promptTokens, completionTokens int) float64 {
	rate, ok := chatRates[model]
	if !ok {
		return 0
	}
	cost := float64(promptTokens)/1000*rate.promptPer1K + float64(completionTokens)/1000*rate.completionPer1K
	return roundMicro(cost)
}

// SpeechCost returns the USD cost of synthesizing the given number of input
// characters with the given model.
func SpeechCost(model string, characters int) float64 {
	rate, ok := speechRates[model]
	if !ok {
		return 0
	}
	return roundMicro(float64(characters) / 1000 * rate)
}

// roundMicro rounds to whole micro-dollars so stored aggregates stay exact.
func roundMicro(usd float64) float64 {
	return math.Round(usd*1e6) / 1e6
}

// microUSD converts a USD amount to whole micro-dollars. Aggregation happens
// in integer micro-dollars so repeated float additions cannot drift.
func microUSD(usd float64) int64 {
	return int64(math.Round(usd * 1e6))
}

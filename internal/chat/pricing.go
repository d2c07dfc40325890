package chat

import "unicode/utf8"

// Rate is USD per 1K tokens.
type Rate struct {
	Input  float64
	Output float64
}

var modelRates = map[string]Rate{
	"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
	"gpt-4":         {Input: 0.03, Output: 0.06},
	"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
}

// fallbackModel prices any model identifier missing from the table.
const fallbackModel = "gpt-3.5-turbo"

var SupportedModels = []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo"}

func IsSupportedModel(model string) bool {
	_, ok := modelRates[model]
	return ok
}

func RateFor(model string) Rate {
	if r, ok := modelRates[model]; ok {
		return r
	}
	return modelRates[fallbackModel]
}

// Cost bills exact provider-reported token counts against the model's rates.
func Cost(model string, inputTokens, outputTokens int) float64 {
	r := RateFor(model)
	return (float64(inputTokens)/1000)*r.Input + (float64(outputTokens)/1000)*r.Output
}

// EstimateTokens is the cheap local approximation (1 token per ~4 chars)
// recorded with user messages. It is never used for billing.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

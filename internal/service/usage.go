package service

import (
	"github.com/shopspring/decimal"
)

var perMillion = decimal.NewFromInt(1_000_000)

// Usage is the token count reported with a chat reply.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CalculateCost prices usage at USD per million tokens.
func CalculateCost(u Usage, promptPrice, completionPrice decimal.Decimal) decimal.Decimal {
	prompt := decimal.NewFromInt(int64(u.PromptTokens)).Mul(promptPrice)
	completion := decimal.NewFromInt(int64(u.CompletionTokens)).Mul(completionPrice)
	return prompt.Add(completion).Div(perMillion)
}

package settlement

import (
	"errors"

	"github.com/shopspring/decimal"

	"splitledger/internal/models"
)

var (
	ErrInvalidTotal      = errors.New("total amount must be positive")
	ErrNoParticipants    = errors.New("at least one participant is required")
	ErrInvalidShare      = errors.New("participant share must be positive")
	ErrSharesExceedTotal = errors.New("participant shares exceed total amount")
	ErrSharesBelowTotal  = errors.New("participant shares fall short of total amount")
	ErrBadPercentages    = errors.New("percentages must be positive and sum to 100")
	ErrDuplicateUser     = errors.New("duplicate participant")
)

// ShareInput is one requested participant share. Amount is read for custom
// splits, Percentage for percentage splits; equal splits ignore both.
type ShareInput struct {
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	Percentage string `json:"percentage"`
}

// Share is a resolved participant share including the creator's implicit
// row. Shares always sum exactly to the bill total: integer division is
// floored and the remainder lands on the creator.
type Share struct {
	UserID     string
	Amount     int64
	Percentage *string
	IsCreator  bool
}

// ComputeShares resolves the requested split into exact minor-unit shares.
// The creator is an implicit extra participant for equal splits and absorbs
// the rounding remainder for every split type.
func ComputeShares(splitType string, total int64, creatorID string, inputs []ShareInput) ([]Share, error) {
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	if len(inputs) == 0 {
		return nil, ErrNoParticipants
	}
	seen := map[string]struct{}{creatorID: {}}
	for _, input := range inputs {
		if _, dup := seen[input.UserID]; dup {
			return nil, ErrDuplicateUser
		}
		seen[input.UserID] = struct{}{}
	}

	switch splitType {
	case models.SplitTypeEqual:
		return equalShares(total, creatorID, inputs)
	case models.SplitTypeCustom:
		return customShares(total, creatorID, inputs)
	case models.SplitTypePercentage:
		return percentageShares(total, creatorID, inputs)
	}
	return nil, errors.New("unknown split type")
}

func equalShares(total int64, creatorID string, inputs []ShareInput) ([]Share, error) {
	headcount := int64(len(inputs)) + 1
	share := total / headcount
	if share <= 0 {
		return nil, ErrInvalidShare
	}
	shares := make([]Share, 0, headcount)
	for _, input := range inputs {
		shares = append(shares, Share{UserID: input.UserID, Amount: share})
	}
	remainder := total - share*int64(len(inputs))
	shares = append(shares, Share{UserID: creatorID, Amount: remainder, IsCreator: true})
	return shares, nil
}

func customShares(total int64, creatorID string, inputs []ShareInput) ([]Share, error) {
	var sum int64
	shares := make([]Share, 0, len(inputs)+1)
	for _, input := range inputs {
		if input.Amount <= 0 {
			return nil, ErrInvalidShare
		}
		sum += input.Amount
		shares = append(shares, Share{UserID: input.UserID, Amount: input.Amount})
	}
	if sum > total {
		return nil, ErrSharesExceedTotal
	}
	// Shares must account for the whole bill; only a rounding cent may be
	// left for the creator's implicit row.
	if total-sum > 1 {
		return nil, ErrSharesBelowTotal
	}
	shares = append(shares, Share{UserID: creatorID, Amount: total - sum, IsCreator: true})
	return shares, nil
}

func percentageShares(total int64, creatorID string, inputs []ShareInput) ([]Share, error) {
	totalDec := decimal.NewFromInt(total)
	hundred := decimal.NewFromInt(100)
	percentSum := decimal.Zero
	var sum int64
	shares := make([]Share, 0, len(inputs)+1)
	for _, input := range inputs {
		pct, err := decimal.NewFromString(input.Percentage)
		if err != nil || pct.LessThanOrEqual(decimal.Zero) {
			return nil, ErrBadPercentages
		}
		percentSum = percentSum.Add(pct)
		amount := totalDec.Mul(pct).Div(hundred).Floor().IntPart()
		if amount <= 0 {
			return nil, ErrInvalidShare
		}
		pctStr := pct.String()
		sum += amount
		shares = append(shares, Share{UserID: input.UserID, Amount: amount, Percentage: &pctStr})
	}
	// Tolerate 0.01 of representation slack either way; anything larger is
	// a malformed request, not rounding.
	if hundred.Sub(percentSum).Abs().GreaterThan(decimal.New(1, -2)) {
		return nil, ErrBadPercentages
	}
	if sum > total {
		return nil, ErrSharesExceedTotal
	}
	shares = append(shares, Share{UserID: creatorID, Amount: total - sum, IsCreator: true})
	return shares, nil
}

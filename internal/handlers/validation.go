package handlers

import (
	"errors"

	"splitledger/internal/money"
)

var errInvalidAmount = errors.New("invalid amount")

func parseAmount(raw string) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount <= 0 {
		return 0, errInvalidAmount
	}
	return amount, nil
}

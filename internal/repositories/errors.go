package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrBudgetNotFound      = errors.New("budget not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNothingToRefund     = errors.New("no refundable consume for reference")
	ErrReferenceRefunded   = errors.New("reference was already refunded")
)

func mapNoRows(err error, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

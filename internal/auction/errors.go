package auction

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrAuctionClosed          = errors.New("auction closed")
	ErrBidTooLow              = errors.New("bid too low")
	ErrContention             = errors.New("too many concurrent bids, retry shortly")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrValidation             = errors.New("validation failed")
)

// BidTooLowError carries the price the bid had to beat
type BidTooLowError struct {
	CurrentPrice float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be higher than current bid %.2f", e.CurrentPrice)
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }

// ClosedError reports which side of the bidding window the request fell on
type ClosedError struct {
	Phase Phase
}

func (e *ClosedError) Error() string {
	if e.Phase == PhaseScheduled {
		return "auction has not started yet"
	}
	return "auction has already ended"
}

func (e *ClosedError) Is(target error) bool { return target == ErrAuctionClosed }

// ValidationError lists the offending fields of a request
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

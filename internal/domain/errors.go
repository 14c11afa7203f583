package domain

import "github.com/pkg/errors"

var (
	ErrAlreadyInitialized             = errors.New("issuer supply already initialized")
	ErrInsufficientBalance            = errors.New("insufficient balance")
	ErrInsufficientAvailableShares    = errors.New("insufficient available shares")
	ErrOfferAlreadyResolved           = errors.New("offer already resolved")
	ErrOfferNotEligibleForAlternative = errors.New("offer not eligible for alternative offers")
	ErrOfferExpired                   = errors.New("offer expired")
	ErrNotAuthorized                  = errors.New("not authorized")
	ErrNotFound                       = errors.New("not found")
	ErrIssuerExists                   = errors.New("holder already registered as an issuer")

	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("amount must be a positive number")
	ErrInvalidPrice  = errors.New("price must be a positive number")
	ErrSameHolder    = errors.New("cannot transfer to the same holder")
)

package billing

import "errors"

var (
	// ErrServiceNotFound is returned when a service id resolves to nothing.
	ErrServiceNotFound = errors.New("billing: service not found")
	// ErrStatementNotFound is returned when a statement id resolves to nothing.
	ErrStatementNotFound = errors.New("billing: statement not found")
	// ErrClientNotFound is returned when a service references a missing client.
	ErrClientNotFound = errors.New("billing: client not found")
	// ErrDateBeforeStart rejects ledger entries dated before the service start.
	ErrDateBeforeStart = errors.New("billing: statement date before service start date")
	// ErrInvalidDate rejects dates in neither accepted layout.
	ErrInvalidDate = errors.New("billing: invalid date")
	// ErrNegativeAmount rejects credit or debit below zero.
	ErrNegativeAmount = errors.New("billing: credit and debit must be non-negative")
	// ErrReferenceInUse flags a YI reference already used by another client.
	ErrReferenceInUse = errors.New("billing: reference is already used by another client")
	// ErrReferenceCategory flags a YI reference reused under a different category.
	ErrReferenceCategory = errors.New("billing: reference already exists for this client under a different category")
)

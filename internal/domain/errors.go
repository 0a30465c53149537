package domain

import "errors"

var (
	// ErrConversationNotFound signals a missing conversation state.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrInvalidPreferenceKey signals a preference key outside the fixed set.
	ErrInvalidPreferenceKey = errors.New("invalid preference key")
	// ErrInvalidOffer signals an offer record failing catalog invariants.
	ErrInvalidOffer = errors.New("invalid offer")
	// ErrVectorDimMismatch signals an embedding dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrCapabilityUnavailable signals that every provider in a fallback
	// chain failed or timed out.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrMalformedCapabilityResponse signals a schema-invalid capability response.
	ErrMalformedCapabilityResponse = errors.New("malformed capability response")
	// ErrCatalogUnavailable signals that the offer catalog store cannot be read.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

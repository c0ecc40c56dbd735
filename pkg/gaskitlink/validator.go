// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gaskitlink

// ValidationKind identifies why a reply frame was rejected
type ValidationKind int

const (
	KindShort ValidationKind = iota
	KindBadStart
	KindAddressMismatch
	KindCommandMismatch
	KindChecksumMismatch
)

func (k ValidationKind) String() string {
	switch k {
	case KindShort:
		return "SHORT"
	case KindBadStart:
		return "BAD_START"
	case KindAddressMismatch:
		return "ADDRESS_MISMATCH"
	case KindCommandMismatch:
		return "COMMAND_MISMATCH"
	case KindChecksumMismatch:
		return "CHECKSUM_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a malformed reply
type ValidationError struct {
	Kind    ValidationKind
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

func newValidationError(kind ValidationKind, msg string, details map[string]interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: msg, Details: details}
}

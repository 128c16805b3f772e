package errors

// ContractViolation is the panic value raised when client and engine disagree
// about the protocol itself: an unknown discriminant, a union with the wrong
// number of tags, a response for a different command, or a lifecycle misuse.
// These are never part of the classified error taxonomy.
type ContractViolation struct {
	Err *Error
}

func (v *ContractViolation) Error() string {
	return "internal contract violation: " + v.Err.Error()
}

func (v *ContractViolation) Unwrap() error {
	return v.Err
}

// Violation panics with a *ContractViolation wrapping err.
func Violation(err *Error) {
	panic(&ContractViolation{Err: err})
}

// AsViolation extracts a *ContractViolation from a recovered panic value.
func AsViolation(recovered any) (*ContractViolation, bool) {
	v, ok := recovered.(*ContractViolation)
	return v, ok
}

package transport

// ErrInvalidInput is returned for empty pixel sets, mismatched shapes,
// unknown methods and out-of-range options.
// Use errors.Is(err, ErrInvalidInput) to check for this error.
var ErrInvalidInput = &InputError{}

// InputError describes which argument was rejected and why.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field != "" {
		return "invalid input: " + e.Field + " " + e.Reason
	}
	return "invalid input"
}

func (e *InputError) Is(target error) bool {
	_, ok := target.(*InputError)
	return ok
}

func invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

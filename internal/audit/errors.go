package audit

import "fmt"

// TamperError reports a broken link in the audit trail.
type TamperError struct {
	Seq     uint64
	Message string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("AUDIT TRAIL TAMPERED: entry %d: %s", e.Seq, e.Message)
}

func NewTamperError(seq uint64, message string) *TamperError {
	return &TamperError{
		Seq:     seq,
		Message: message,
	}
}

func IsTamperError(err error) bool {
	_, ok := err.(*TamperError)
	return ok
}

func AsTamperError(err error) *TamperError {
	if te, ok := err.(*TamperError); ok {
		return te
	}
	return nil
}

package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	dErrors "workspace-audit/pkg/domain-errors"
)

// MaxBodySize caps admin API request bodies.
const MaxBodySize = 64 << 10

const MaxFilterActions = 50

// Length limits count runes, not bytes.
const (
	MaxSearchTextLength = 200
	MaxResourceLength   = 128
	MaxAdminIDLength    = 128
	MaxActionLength     = 64
)

func CheckSliceCount(fieldName string, count, max int) error {
	if count <= max {
		return nil
	}
	return dErrors.Newf(dErrors.CodeValidation, "too many %s: max %d allowed", fieldName, max)
}

// CheckStringLength rejects values longer than max runes or containing
// control characters, which would corrupt CSV exports and log lines.
func CheckStringLength(fieldName, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s exceeds max length of %d", fieldName, max)
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return dErrors.Newf(dErrors.CodeValidation, "%s contains control characters", fieldName)
		}
	}
	return nil
}

// CheckEachStringLength applies CheckStringLength to each element, naming
// the offending index.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for i, v := range values {
		if err := CheckStringLength(fmt.Sprintf("%s[%d]", fieldName, i), v, max); err != nil {
			return err
		}
	}
	return nil
}

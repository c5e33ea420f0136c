package partner

import (
	"fmt"
	"strings"

	"github.com/erp/crm/internal/domain/shared"
)

const (
	individualDocumentLength   = 11
	organizationDocumentLength = 14
)

// documentSeparators are the punctuation characters accepted in formatted
// documents ("123.456.789-09", "12.345.678/0001-95").
var documentSeparators = strings.NewReplacer(".", "", "-", "", "/", "", " ", "")

// NormalizeDocument strips formatting punctuation from a document number
func NormalizeDocument(document string) string {
	return documentSeparators.Replace(strings.TrimSpace(document))
}

// DocumentLength returns the digit count required for a classification
func DocumentLength(classification Classification) (int, error) {
	switch classification {
	case ClassificationIndividual:
		return individualDocumentLength, nil
	case ClassificationOrganization:
		return organizationDocumentLength, nil
	default:
		return 0, shared.NewValidationError("INVALID_CLASSIFICATION",
			"Classification must be 'individual' or 'organization'")
	}
}

// ValidateDocument checks a document against the classification and returns
// its digits-only form.
func ValidateDocument(classification Classification, document string) (string, error) {
	length, err := DocumentLength(classification)
	if err != nil {
		return "", err
	}

	normalized := NormalizeDocument(document)
	if normalized == "" {
		return "", shared.NewValidationError("INVALID_DOCUMENT", "Document number cannot be empty")
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return "", shared.NewValidationError("INVALID_DOCUMENT", "Document number must contain only digits")
		}
	}
	if len(normalized) != length {
		return "", shared.NewValidationError("INVALID_DOCUMENT",
			fmt.Sprintf("Document number for %s clients must have %d digits, got %d", classification, length, len(normalized)))
	}
	return normalized, nil
}

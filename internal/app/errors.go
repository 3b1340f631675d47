package app

import (
	"fmt"
	"net/http"

	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/api"
	"github.com/code-We-Go/wifeyforlife-dashboard-sub000/internal/store"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeDuplicateImage    = "DUPLICATE_IMAGE"
	CodeAssetTooLarge     = "ASSET_TOO_LARGE"
	CodeAssetsUnavailable = "ASSETS_UNAVAILABLE"
)

// DomainError is an error the HTTP layer writes back as-is.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, details)
}

// duplicateImageError reports an append whose asset is already in the
// section. existing, when known, lets the caller adopt the stored image id.
func duplicateImageError(assetRef, sectionID string, sectionIndex *int, existing *store.Image) *DomainError {
	details := api.DuplicateImageDetails{
		AssetRef:     assetRef,
		SectionID:    sectionID,
		SectionIndex: sectionIndex,
	}
	if existing != nil {
		image := api.FromStoreImage(*existing)
		details.Image = &image
	}
	return domainError(http.StatusConflict, CodeDuplicateImage, "Image already exists in section", details)
}

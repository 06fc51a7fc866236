package problem

import "fmt"

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ErrorDetail struct {
	In       string `json:"in"`
	Location string `json:"location"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// APIError implements error + Problem Details (RFC 7807)
type APIError struct {
	Title  string        `json:"title"`
	Status int           `json:"status"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

func (e APIError) Error() string { return e.Title }

// HasCode reports whether any error detail carries the given code. Callers
// use this to distinguish the typed failure kinds of the composition core.
func (e APIError) HasCode(code string) bool {
	for _, d := range e.Errors {
		if d.Code == code {
			return true
		}
	}
	return false
}

func NewBadRequest(location, detail string, params ...InvalidParam) APIError {
	return APIError{
		Title:  "Request validation failed",
		Status: 400,
		Errors: toErrorDetails(params, detail, "body", location, "bad_request"),
	}
}

func NewNotFound(location, detail string, params ...InvalidParam) APIError {
	return APIError{
		Title:  "Resource Not Found",
		Status: 404,
		Errors: toErrorDetails(params, detail, "path", location, "not_found"),
	}
}

func NewInternalServerError(detail string) APIError {
	return APIError{
		Title:  "Internal Server Error",
		Status: 500,
		Errors: toErrorDetails(nil, detail, "", "", "internal_error"),
	}
}

func NewForbidden(location, detail string) APIError {
	return APIError{
		Title:  "Forbidden",
		Status: 403,
		Errors: toErrorDetails(nil, detail, "", location, "forbidden"),
	}
}

// NewConflict reports a storage-level conflict that survived one retry,
// such as two writers racing to the same element layer.
func NewConflict(location, detail string) APIError {
	return APIError{
		Title:  "Conflict",
		Status: 409,
		Errors: toErrorDetails(nil, detail, "body", location, "conflict"),
	}
}

// NewInvalidElementType rejects an element creation with an unknown type.
func NewInvalidElementType(elementType string) APIError {
	return APIError{
		Title:  "Request validation failed",
		Status: 400,
		Errors: toErrorDetails(nil,
			fmt.Sprintf("unknown element type %q", elementType),
			"body", "type", "invalid_element_type"),
	}
}

// NewElementNotInArtifact reports an element that exists but belongs to a
// different omamori than the one addressed.
func NewElementNotInArtifact(omamoriID, elementID string) APIError {
	return APIError{
		Title:  "Resource Not Found",
		Status: 404,
		Errors: toErrorDetails(nil,
			fmt.Sprintf("element %s does not belong to omamori %s", elementID, omamoriID),
			"path", "elementId", "element_not_in_artifact"),
	}
}

// NewReorderMismatch rejects a reorder whose id list does not exactly match
// the current non-background element set.
func NewReorderMismatch(detail string) APIError {
	return APIError{
		Title:  "Conflict",
		Status: 409,
		Errors: toErrorDetails(nil, detail, "body", "elementIds", "reorder_mismatch"),
	}
}

// NewPublishValidation carries every violated publish-readiness rule, one
// ErrorDetail per rule, so a single round trip reports everything wrong.
func NewPublishValidation(params ...InvalidParam) APIError {
	out := make([]ErrorDetail, 0, len(params))
	for _, p := range params {
		out = append(out, ErrorDetail{
			In:       "body",
			Location: p.Name,
			Code:     p.Name,
			Detail:   p.Reason,
		})
	}
	return APIError{
		Title:  "Publish validation failed",
		Status: 422,
		Errors: out,
	}
}

func toErrorDetails(params []InvalidParam, fallbackDetail, fallbackIn, fallbackLocation, fallbackCode string) []ErrorDetail {
	if len(params) == 0 {
		if fallbackDetail == "" {
			return nil
		}
		return []ErrorDetail{{
			In:       fallbackIn,
			Location: fallbackLocation,
			Code:     fallbackCode,
			Detail:   fallbackDetail,
		}}
	}
	out := make([]ErrorDetail, 0, len(params))
	for _, p := range params {
		out = append(out, ErrorDetail{
			In:       "body",
			Location: p.Name,
			Code:     p.Name,
			Detail:   p.Reason,
		})
	}
	return out
}

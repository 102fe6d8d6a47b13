package http

import (
	apperrors "dashcollab/pkg/errors"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DecodeOptionalJSON decodes the request body into v. An empty body leaves v
// untouched.
func DecodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("Invalid request body")
	}
	return nil
}

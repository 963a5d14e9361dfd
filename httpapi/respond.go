package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/neuralfoundry-coder/generative-img-serving/gwerrors"
)

// errorBody is the OpenAI-compatible nested error envelope (spec §7:
// the body carries error.message and error.type).
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: message, Type: code}})
}

// writeGatewayError maps a gwerrors.Error (or any error) to its HTTP
// status and writes it as a JSON body.
func writeGatewayError(w http.ResponseWriter, err error) {
	status := gwerrors.StatusCode(err)
	code := "internal_error"
	var ge *gwerrors.Error
	if gwerrors.As(err, &ge) {
		code = string(ge.Kind)
	}
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

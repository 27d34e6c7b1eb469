package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// respStatus is the body of every response that carries no videos.
type respStatus struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Video   string `json:"video,omitempty"`
}

// writeJSON writes body with status. A body that cannot be encoded turns into a
// 500 so the client never receives a half written response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		data = []byte(fmt.Sprintf(`{"message":"could not encode response","error":%q}`, err.Error()))
	}
	w.WriteHeader(status)
	w.Write(data)
}

func writeStatus(w http.ResponseWriter, status int, message string, err error, id string) {
	resp := respStatus{Message: message, Video: id}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

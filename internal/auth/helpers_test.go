package auth

import (
	"encoding/json"
	"net/http/httptest"
)

func jsonDecode(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

package inbound

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-credentials/core"
)

// writeCallbackPage renders the HTML page returned at the end of a redirect
// flow. It posts {type, data} to the opener window at the recorded origin
// and closes itself. The wildcard target is used only when no origin could
// be determined for the flow.
func writeCallbackPage(w http.ResponseWriter, result core.CallbackResult) {
	payload := map[string]any{
		"type": result.Type,
		"data": result.Data,
	}
	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		encodedPayload = []byte(`{"type":"error","data":{"error":"internal_error"}}`)
	}
	origin := result.Origin
	if origin == "" {
		origin = "*"
	}
	encodedOrigin, err := json.Marshal(origin)
	if err != nil {
		encodedOrigin = []byte(`"*"`)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization complete</title></head>
<body>
<script>
(function () {
  var payload = %s;
  var target = %s;
  if (window.opener) {
    window.opener.postMessage(payload, target);
  }
  window.close();
})();
</script>
</body>
</html>
`, encodedPayload, encodedOrigin)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

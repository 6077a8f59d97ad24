package embedded

import "encoding/json"

func decodeJSONObject(body []byte) (map[string]any, error) {
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeResult(result map[string]any) []byte {
	payload := map[string]any{"success": true, "result": result}
	b, err := json.Marshal(payload)
	if err != nil {
		return []byte(`{"success":true}`)
	}
	return b
}

func encodeError(err error) []byte {
	b, marshalErr := json.Marshal(map[string]any{"success": false, "error": err.Error()})
	if marshalErr != nil {
		return []byte(`{"success":false,"error":"internal"}`)
	}
	return b
}

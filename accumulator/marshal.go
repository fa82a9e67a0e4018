package accumulator

import "encoding/json"

func marshalPayload(p scheduleTaskResultPayload) ([]byte, error) {
	return json.Marshal(p)
}

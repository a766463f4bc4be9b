package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

func decodeEngineState(r *http.Request) (*candidate.EngineState, error) {
	defer r.Body.Close()
	var state candidate.EngineState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode engine state: %w", err)
	}
	return &state, nil
}

package msengine

import (
	"encoding/json"
	"regexp"
	"strconv"
)

var scalabilityRe = regexp.MustCompile(`^[LS](\d+)T(\d+)`)

// parseScalabilityMode reads "L3T3" or "S2T1" style modes. Unknown or empty
// modes mean a single layer.
func parseScalabilityMode(mode string) (spatial, temporal int) {
	m := scalabilityRe.FindStringSubmatch(mode)
	if m == nil {
		return 1, 1
	}
	spatial, _ = strconv.Atoi(m[1])
	temporal, _ = strconv.Atoi(m[2])
	return max(spatial, 1), max(temporal, 1)
}

// layersOf extracts layer counts from marshalled consumer rtp parameters.
func layersOf(rtpParameters json.RawMessage) (spatial, temporal int) {
	var p struct {
		Encodings []struct {
			ScalabilityMode string `json:"scalabilityMode"`
		} `json:"encodings"`
	}
	if err := json.Unmarshal(rtpParameters, &p); err != nil || len(p.Encodings) == 0 {
		return 1, 1
	}
	return parseScalabilityMode(p.Encodings[0].ScalabilityMode)
}

// mapState folds ICE and DTLS states onto the engine's transport states.
func mapState(s string) (string, bool) {
	switch s {
	case "new", "connecting", "connected", "failed", "closed", "disconnected":
		return s, true
	case "completed":
		return "connected", true
	case "checking":
		return "connecting", true
	}
	return "", false
}

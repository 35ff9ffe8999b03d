package msengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseScalabilityMode(t *testing.T) {
	cases := map[string][2]int{
		"L1T3":     {1, 3},
		"S3T3":     {3, 3},
		"L3T2_KEY": {3, 2},
		"":         {1, 1},
		"bogus":    {1, 1},
		"L0T0":     {1, 1},
	}
	for mode, want := range cases {
		s, tl := parseScalabilityMode(mode)
		assert.Equal(t, want, [2]int{s, tl}, mode)
	}
}

func TestLayersOf(t *testing.T) {
	s, tl := layersOf(json.RawMessage(`{"encodings":[{"ssrc":1,"scalabilityMode":"S3T3"}]}`))
	assert.Equal(t, 3, s)
	assert.Equal(t, 3, tl)

	s, tl = layersOf(json.RawMessage(`{"encodings":[]}`))
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, tl)
}

func TestMapState(t *testing.T) {
	got, ok := mapState("completed")
	assert.True(t, ok)
	assert.Equal(t, "connected", got)

	_, ok = mapState("sctp-open")
	assert.False(t, ok)
}

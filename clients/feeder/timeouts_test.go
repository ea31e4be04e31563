package feeder_test

import (
	"testing"
	"time"

	"github.com/NethermindEth/katana/clients/feeder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr string
	}{
		{name: "single value grows", input: "5s", want: "5s,10s,20s,40s,1m20s"},
		{name: "fixed ladder", input: "1s, 2s,3s", want: "1s,2s,3s"},
		{name: "trailing comma", input: "1s,2s,", want: "1s,2s"},
		{name: "empty", input: "", wantErr: "timeouts are not set"},
		{name: "not ascending", input: "2s,1s", wantErr: "ascending order"},
		{name: "bad duration", input: "2x", wantErr: "parsing timeout parameter number 1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			timeouts, err := feeder.ParseTimeouts(tc.input)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, timeouts.String(), tc.want)
		})
	}
}

func TestTimeoutsLadder(t *testing.T) {
	timeouts := feeder.FixedTimeouts(time.Second, 2*time.Second)
	assert.Equal(t, time.Second, timeouts.Current())

	timeouts.Decrease()
	assert.Equal(t, time.Second, timeouts.Current())

	timeouts.Increase()
	timeouts.Increase()
	assert.Equal(t, 2*time.Second, timeouts.Current())

	timeouts.Decrease()
	assert.Equal(t, time.Second, timeouts.Current())
}

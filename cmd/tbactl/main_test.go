package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDispatchExitCodes verifies failures surface as exit codes instead of
// terminating the process from inside a subcommand.
func TestDispatchExitCodes(t *testing.T) {
	const (
		impl  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
		token = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no command", args: nil, want: 2},
		{name: "unknown command", args: []string{"mint"}, want: 2},
		{name: "derive without chain", args: []string{"derive", "-impl", impl, "-token", token}, want: 1},
		{name: "derive zero implementation", args: []string{"derive", "-impl", "0x0000000000000000000000000000000000000000", "-token", token, "-chain", "1"}, want: 1},
		{name: "derive", args: []string{"derive", "-impl", impl, "-token", token, "-chain", "1", "-from", "0", "-to", "2"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dispatch(tt.args))
		})
	}
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/wire"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"", command{}},
		{"undo", command{name: "undo", frame: wire.TypeUndo, payload: struct{}{}}},
		{"redo", command{name: "redo", frame: wire.TypeRedo, payload: struct{}{}}},
		{"clear", command{name: "clear", frame: wire.TypeClear, payload: struct{}{}}},
		{"who", command{name: "who"}},
		{"  history  ", command{name: "history"}},
		{"cursor 3 4.5", command{name: "cursor", frame: wire.TypeCursorMove, payload: wire.CursorMove{X: 3, Y: 4.5}}},
		{"line 0 0 10 20", command{name: "line", frame: wire.TypeDraw, payload: wire.Draw{
			Points: []canvas.Point{{X: 0, Y: 0}, {X: 10, Y: 20}}, Color: "#000000", Size: 3,
		}}},
		{"line 0 0 10 20 #ff0000 8", command{name: "line", frame: wire.TypeDraw, payload: wire.Draw{
			Points: []canvas.Point{{X: 0, Y: 0}, {X: 10, Y: 20}}, Color: "#ff0000", Size: 8,
		}}},
		{"stroke 1,1 2,2 3,1 #00ff00", command{name: "stroke", frame: wire.TypeDraw, payload: wire.Draw{
			Points: []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 1}}, Color: "#00ff00", Size: 3,
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line, "#000000", 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"paint",
		"cursor 1",
		"cursor a b",
		"line 0 0 1",
		"line 0 0 1 x",
		"line 0 0 1 1 #fff -2",
		"line 0 0 1 1 #fff 2 extra",
		"stroke 1,1",
		"stroke 1,1 2,b",
	} {
		_, err := parseCommand(line, "#000000", 3)
		assert.Error(t, err, line)
	}
}

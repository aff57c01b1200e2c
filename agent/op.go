package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/wire"
)

var errUsage = errors.New("usage")

// command is one parsed console line. Commands with a frame type are sent
// to the server; the rest are answered locally.
type command struct {
	name    string
	frame   wire.Type
	payload any
}

const helpText = `commands:
  line x1 y1 x2 y2 [color] [size]   draw a straight stroke
  stroke x,y x,y ... [color] [size] draw a polyline
  cursor x y                        move the pointer
  undo | redo | clear               edit the shared history
  who                               list participants
  history                           list visible strokes
  quit`

func parseCommand(line string, color string, size float64) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	name, args := fields[0], fields[1:]
	switch name {
	case "undo", "redo", "clear":
		return command{name: name, frame: wire.Type(name), payload: struct{}{}}, nil
	case "who", "history", "help", "quit", "exit":
		return command{name: name}, nil
	case "cursor":
		if len(args) != 2 {
			return command{}, fmt.Errorf("%w: cursor x y", errUsage)
		}
		nums, err := floats(args)
		if err != nil {
			return command{}, err
		}
		return command{name: name, frame: wire.TypeCursorMove, payload: wire.CursorMove{X: nums[0], Y: nums[1]}}, nil
	case "line":
		if len(args) < 4 {
			return command{}, fmt.Errorf("%w: line x1 y1 x2 y2 [color] [size]", errUsage)
		}
		nums, err := floats(args[:4])
		if err != nil {
			return command{}, err
		}
		color, size, err := style(args[4:], color, size)
		if err != nil {
			return command{}, err
		}
		return command{name: name, frame: wire.TypeDraw, payload: wire.Draw{
			Points: []canvas.Point{{X: nums[0], Y: nums[1]}, {X: nums[2], Y: nums[3]}},
			Color:  color,
			Size:   size,
		}}, nil
	case "stroke":
		var pts []canvas.Point
		rest := args
		for len(rest) > 0 && strings.Contains(rest[0], ",") {
			xy := strings.SplitN(rest[0], ",", 2)
			nums, err := floats(xy)
			if err != nil {
				return command{}, err
			}
			pts = append(pts, canvas.Point{X: nums[0], Y: nums[1]})
			rest = rest[1:]
		}
		if len(pts) < 2 {
			return command{}, fmt.Errorf("%w: stroke needs at least two x,y points", errUsage)
		}
		color, size, err := style(rest, color, size)
		if err != nil {
			return command{}, err
		}
		return command{name: name, frame: wire.TypeDraw, payload: wire.Draw{Points: pts, Color: color, Size: size}}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", name)
	}
}

func style(args []string, color string, size float64) (string, float64, error) {
	if len(args) > 0 {
		color = args[0]
	}
	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || v <= 0 {
			return "", 0, fmt.Errorf("bad size %q", args[1])
		}
		size = v
	}
	if len(args) > 2 {
		return "", 0, fmt.Errorf("%w: too many arguments", errUsage)
	}
	return color, size, nil
}

func floats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

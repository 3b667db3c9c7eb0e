package annotation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/interaction"
	"github.com/lewtec/pagetagger/internal/pageview"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadCommand     = errors.New("malformed command")
)

// Command is one user action. Command scripts hold one JSON object per line:
//
//	{"op":"down","x":20,"y":20}
//	{"op":"move","x":120,"y":80}
//	{"op":"up","x":120,"y":80}
//	{"op":"save","type":"color","values":{"index":"1","filling":"2"}}
//	{"op":"next"}
//	{"op":"rotate","dir":"right"}
//
// Coordinates are page-local raster pixels. dblclick takes either an id or a
// position. rotate takes dir left or right, zoom takes in, out, reset or all.
type Command struct {
	Op     string            `json:"op"`
	X      int               `json:"x,omitempty"`
	Y      int               `json:"y,omitempty"`
	ID     string            `json:"id,omitempty"`
	Type   string            `json:"type,omitempty"`
	Values map[string]string `json:"values,omitempty"`
	Page   int               `json:"page,omitempty"`
	Dir    string            `json:"dir,omitempty"`
}

func (c Command) pos() domain.Point { return domain.Point{X: c.X, Y: c.Y} }

// event maps gesture and dialog commands to machine events. ok is false for
// page view commands.
func (c Command) event() (ev interaction.Event, ok bool, err error) {
	switch c.Op {
	case "down":
		return interaction.PointerDown{Pos: c.pos()}, true, nil
	case "move":
		return interaction.PointerMove{Pos: c.pos()}, true, nil
	case "up":
		return interaction.PointerUp{Pos: c.pos()}, true, nil
	case "dblclick":
		if c.ID != "" {
			return interaction.DoubleActivate{ID: c.ID}, true, nil
		}
		return interaction.DoubleActivateAt{Pos: c.pos()}, true, nil
	case "delete":
		return interaction.Delete{ID: c.ID}, true, nil
	case "type":
		t, err := domain.ParseType(c.Type)
		if err != nil {
			return nil, true, err
		}
		return interaction.SelectType{Type: t}, true, nil
	case "save":
		var t domain.Type
		if c.Type != "" {
			if t, err = domain.ParseType(c.Type); err != nil {
				return nil, true, err
			}
		}
		return interaction.Save{Type: t, Values: c.Values}, true, nil
	case "cancel":
		return interaction.Cancel{}, true, nil
	}
	return nil, false, nil
}

// Apply runs one command against the session.
func (s *Session) Apply(c Command) error {
	ev, ok, err := c.event()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadCommand, c.Op, err)
	}
	if ok {
		return s.Handle(ev)
	}
	switch c.Op {
	case "next":
		return s.Next()
	case "prev":
		return s.Prev()
	case "goto":
		return s.GoTo(c.Page)
	case "rotate":
		switch c.Dir {
		case "left":
			return s.RotateLeft()
		case "right", "":
			return s.RotateRight()
		}
	case "zoom":
		switch c.Dir {
		case "in", "":
			return s.ZoomIn()
		case "out":
			return s.ZoomOut()
		case "reset":
			return s.ZoomReset()
		case "all":
			return s.ApplyZoomToAll()
		}
	}
	return fmt.Errorf("%w: %s %s", ErrUnknownCommand, c.Op, c.Dir)
}

// Rejected reports whether err is a command the user interface would simply
// ignore, as opposed to a broken command.
func Rejected(err error) bool {
	return errors.Is(err, interaction.ErrBusy) ||
		errors.Is(err, interaction.ErrDialogOpen) ||
		errors.Is(err, interaction.ErrNoDialog) ||
		errors.Is(err, pageview.ErrOutOfRange) ||
		errors.Is(err, pageview.ErrNotRendered)
}

// ReplayResult counts what a replay did.
type ReplayResult struct {
	Commands int
	Rejected int
}

// Replay reads a command script from r and applies it line by line. Blank
// lines and lines starting with # are skipped. Page renders are awaited
// between commands so gestures always see the page they follow. Rejected
// commands are logged and counted; malformed ones stop the replay.
func (s *Session) Replay(ctx context.Context, r io.Reader) (ReplayResult, error) {
	var res ReplayResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var c Command
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if err := s.Wait(ctx); err != nil {
			return res, err
		}
		res.Commands++
		if err := s.Apply(c); err != nil {
			if !Rejected(err) {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			res.Rejected++
			s.logger.Info("replay: command rejected", "line", line, "op", c.Op, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return res, err
	}
	return res, s.Wait(ctx)
}

// Package console is a line-oriented front end for the labeling engine. Each
// line is one gesture or command; errors are printed and the loop goes on.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"peaklabeler/internal/models"
	"peaklabeler/pkg/labeler"
	"peaklabeler/pkg/overlay"
	"peaklabeler/pkg/visualization"
)

const prompt = "> "

const help = `commands:
  next | prev | goto I       move between samples
  point X Y                  toggle one pixel
  range X0 Y0 X1 Y1          toggle a rectangle
  vertex X Y | undo          build a polygon
  paint | erase              commit the polygon
  active [ID]                show or set the active label
  layers                     list labels
  flush                      write the current overlay back
  save [PATH] | load PATH    session snapshot
  preview PATH               render the current sample (.png/.jpg)
  export DIR                 render every sample
  info | help | quit`

// errQuit ends the loop.
var errQuit = errors.New("quit")

// Console drives an engine from text commands.
type Console struct {
	engine *labeler.Engine
	out    io.Writer
}

// New creates a console writing its replies to out.
func New(engine *labeler.Engine, out io.Writer) *Console {
	return &Console{engine: engine, out: out}
}

// Run reads commands from r until quit or end of input.
func (c *Console) Run(r io.Reader) error {
	if _, err := c.engine.Goto(c.engine.Current()); err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	} else {
		c.status()
	}

	scanner := bufio.NewScanner(r)
	fmt.Fprint(c.out, prompt)
	for scanner.Scan() {
		err := c.Exec(scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		fmt.Fprint(c.out, prompt)
	}
	return scanner.Err()
}

// Exec runs one command line.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return errQuit

	case "help", "?":
		fmt.Fprintln(c.out, help)

	case "next", "n":
		if _, err := c.engine.Next(); err != nil {
			return err
		}
		c.status()

	case "prev", "p":
		if _, err := c.engine.Prev(); err != nil {
			return err
		}
		c.status()

	case "goto", "g":
		v, err := ints(args, 1)
		if err != nil {
			return err
		}
		if _, err := c.engine.Goto(v[0]); err != nil {
			return err
		}
		c.status()

	case "point":
		v, err := ints(args, 2)
		if err != nil {
			return err
		}
		return c.engine.TogglePoint(v[0], v[1])

	case "range":
		v, err := ints(args, 4)
		if err != nil {
			return err
		}
		painted, err := c.engine.ToggleRange(v[0], v[1], v[2], v[3])
		if err != nil {
			return err
		}
		if painted {
			fmt.Fprintln(c.out, "range painted")
		} else {
			fmt.Fprintln(c.out, "range cleared")
		}

	case "vertex", "v":
		v, err := floats(args, 2)
		if err != nil {
			return err
		}
		c.engine.AddVertex(v[0], v[1])
		fmt.Fprintf(c.out, "%d vertices pending\n", len(c.engine.Vertices()))

	case "undo", "u":
		if !c.engine.UndoVertex() {
			fmt.Fprintln(c.out, "no pending vertex")
			return nil
		}
		fmt.Fprintf(c.out, "%d vertices pending\n", len(c.engine.Vertices()))

	case "paint", "erase":
		mode := overlay.ModePaint
		if cmd == "erase" {
			mode = overlay.ModeErase
		}
		changed, err := c.engine.CommitPolygon(mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s: %d pixels changed\n", mode, changed)

	case "active", "a":
		if len(args) == 0 {
			fmt.Fprintf(c.out, "active label %d\n", c.engine.ActiveLabel())
			return nil
		}
		v, err := ints(args, 1)
		if err != nil {
			return err
		}
		return c.engine.SetActiveLabel(models.Label(v[0]))

	case "layers":
		lm := c.engine.Layers()
		for _, id := range lm.Order {
			marker := " "
			if id == lm.Active {
				marker = "*"
			}
			l := lm.Layers[id]
			fmt.Fprintf(c.out, "%s %d %-14s %s\n", marker, id, l.Name, l.Color)
		}

	case "flush", "f":
		if err := c.engine.FlushCurrent(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "sample %d written\n", c.engine.Current())

	case "save", "s":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		written, err := c.engine.SaveSession(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "session saved to %s\n", written)

	case "load":
		if len(args) != 1 {
			return fmt.Errorf("usage: load PATH")
		}
		if err := c.engine.LoadSession(args[0]); err != nil {
			return err
		}
		if _, err := c.engine.Goto(c.engine.Current()); err != nil {
			return err
		}
		c.status()

	case "preview":
		if len(args) != 1 {
			return fmt.Errorf("usage: preview PATH")
		}
		viewer, err := visualization.NewViewer(c.engine.Layers())
		if err != nil {
			return err
		}
		s, err := c.engine.GetSample(c.engine.Current())
		if err != nil {
			return err
		}
		return viewer.Save(s, args[0])

	case "export":
		if len(args) != 1 {
			return fmt.Errorf("usage: export DIR")
		}
		viewer, err := visualization.NewViewer(c.engine.Layers())
		if err != nil {
			return err
		}
		return viewer.SaveSequence(c.engine.IndexCount(), c.engine.Inspect, args[0])

	case "info", "i":
		c.status()
		fmt.Fprintf(c.out, "active label %d, %d vertices pending, unflushed %v\n",
			c.engine.ActiveLabel(), len(c.engine.Vertices()), c.engine.Dirty())

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (c *Console) status() {
	i := c.engine.Current()
	ref, err := c.engine.Resolve(i)
	if err != nil {
		fmt.Fprintf(c.out, "sample %d/%d\n", i, c.engine.IndexCount()-1)
		return
	}
	fmt.Fprintf(c.out, "sample %d/%d (%s event %d)\n", i, c.engine.IndexCount()-1, ref.Path, ref.Event)
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d integer arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func floats(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

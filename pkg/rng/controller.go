// Package rng keeps per-sample generator state so any stochastic step taken
// while a sample is on screen replays identically when the sample is revisited.
//
// The Controller owns two independent generators: a general-purpose PCG and a
// ChaCha8 stream reserved for numeric/array work. Nothing here touches the
// math/rand globals; consumers draw from General and Numeric explicitly.
package rng

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
)

// State is the serialized state of both generators.
type State struct {
	General []byte `yaml:"general"`
	Numeric []byte `yaml:"numeric"`
}

// Snapshot is the persistable form of a Controller.
type Snapshot struct {
	Current State         `yaml:"current"`
	Samples map[int]State `yaml:"samples"`
}

// Controller records generator state per sample index.
type Controller struct {
	pcg     *rand.PCG
	chacha  *rand.ChaCha8
	general *rand.Rand
	numeric *rand.Rand
	samples map[int]State
}

// New seeds both generators from seed.
func New(seed int64) *Controller {
	s := uint64(seed)
	var key [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(key[i*8:], s+uint64(i)*0x9e3779b97f4a7c15)
	}

	c := &Controller{
		pcg:     rand.NewPCG(s, s^0xda3e39cb94b95bdb),
		chacha:  rand.NewChaCha8(key),
		samples: make(map[int]State),
	}
	c.general = rand.New(c.pcg)
	c.numeric = rand.New(c.chacha)
	return c
}

// General returns the general-purpose generator.
func (c *Controller) General() *rand.Rand { return c.general }

// Numeric returns the generator reserved for numeric/array work.
func (c *Controller) Numeric() *rand.Rand { return c.numeric }

// Touch records the current state under i on the first visit and restores
// the recorded state on every later visit. It draws no randomness itself.
func (c *Controller) Touch(i int) error {
	if st, ok := c.samples[i]; ok {
		return c.Restore(st)
	}
	st, err := c.State()
	if err != nil {
		return err
	}
	c.samples[i] = st
	return nil
}

// State captures the current state of both generators.
func (c *Controller) State() (State, error) {
	g, err := c.pcg.MarshalBinary()
	if err != nil {
		return State{}, fmt.Errorf("capturing general generator: %w", err)
	}
	n, err := c.chacha.MarshalBinary()
	if err != nil {
		return State{}, fmt.Errorf("capturing numeric generator: %w", err)
	}
	return State{General: g, Numeric: n}, nil
}

// Restore sets both generators to st. On error neither generator changes.
func (c *Controller) Restore(st State) error {
	var pcg rand.PCG
	if err := pcg.UnmarshalBinary(st.General); err != nil {
		return fmt.Errorf("restoring general generator: %w", err)
	}
	var chacha rand.ChaCha8
	if err := chacha.UnmarshalBinary(st.Numeric); err != nil {
		return fmt.Errorf("restoring numeric generator: %w", err)
	}
	*c.pcg = pcg
	*c.chacha = chacha
	return nil
}

// Snapshot returns a deep copy of the current state and the per-sample map.
func (c *Controller) Snapshot() (Snapshot, error) {
	cur, err := c.State()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Current: cur, Samples: make(map[int]State, len(c.samples))}
	for i, st := range c.samples {
		snap.Samples[i] = State{General: clone(st.General), Numeric: clone(st.Numeric)}
	}
	return snap, nil
}

// RestoreSnapshot replaces the current state and the per-sample map.
// Every state is validated first so a bad snapshot leaves c untouched.
func (c *Controller) RestoreSnapshot(snap Snapshot) error {
	scratch := New(0)
	keys := make([]int, 0, len(snap.Samples))
	for i := range snap.Samples {
		keys = append(keys, i)
	}
	sort.Ints(keys)
	for _, i := range keys {
		if err := scratch.Restore(snap.Samples[i]); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	if err := scratch.Restore(snap.Current); err != nil {
		return err
	}

	samples := make(map[int]State, len(snap.Samples))
	for i, st := range snap.Samples {
		samples[i] = State{General: clone(st.General), Numeric: clone(st.Numeric)}
	}
	if err := c.Restore(snap.Current); err != nil {
		return err
	}
	c.samples = samples
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

// Package sim is the top-level facade a host embeds the simulation core
// through: Open loads configuration and builds the event queue, AddCore
// registers the cores to drive, Start/Run/Join/Stop/Close manage the simulation's lifecycle, and
// StepUntil drives it forward a fixed amount at a time, mirroring the
// collaborating model's own host loop which only ever calls step_until in
// a tight loop and never reaches Run/Join at all.
package sim

import (
	"sync"

	"github.com/gvsoc-go/iss-core/config"
	"github.com/gvsoc-go/iss-core/engine/event"
	"github.com/gvsoc-go/iss-core/errors"
	"github.com/gvsoc-go/iss-core/hardware/cpu/core"
	"github.com/gvsoc-go/iss-core/hardware/cpu/csr"
	"github.com/gvsoc-go/iss-core/power"
)

// Core is the minimal view of a hart the facade needs: something it can
// advance one tick at a time and sample for power.
type Core interface {
	Tick() error
	CSRFile() *csr.File
}

// coreAdapter lets *core.Core satisfy the Core interface without core.Core
// itself depending on this package.
type coreAdapter struct {
	*core.Core
}

func (c coreAdapter) CSRFile() *csr.File {
	return c.CSR
}

// WrapCore adapts a *core.Core for use with a Simulator.
func WrapCore(c *core.Core) Core {
	return coreAdapter{c}
}

// state is the facade's own lifecycle, independent of the cores it drives.
type state int

const (
	stateClosed state = iota
	stateOpen
	stateRunning
)

// Simulator is the top-level facade. The zero value is not usable;
// construct with New.
type Simulator struct {
	mu sync.Mutex

	cfg   config.Config
	queue *event.Queue
	cores []Core
	power *power.Probe

	state     state
	refcount  int
	runErr    error
	runWG     sync.WaitGroup
	stopCh    chan struct{}
}

// New constructs a Simulator that is not yet open.
func New() *Simulator {
	return &Simulator{
		power: power.NewProbe(power.Coefficients{}),
	}
}

// Open loads configuration from configPath, builds the event queue, and
// transitions the facade into the open state. Opening an already-open
// Simulator returns a curated SimulatorAlreadyOpen error.
func (s *Simulator) Open(configPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateClosed {
		return errors.Errorf(errors.SimulatorAlreadyOpen)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.queue = event.NewQueue()
	s.state = stateOpen

	return nil
}

// AddCore registers a core to be advanced by StepUntil/Run. Cores are
// ticked in registration order on every step.
func (s *Simulator) AddCore(c Core) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cores = append(s.cores, c)
}

// SetPowerCoefficients replaces the facade's power model.
func (s *Simulator) SetPowerCoefficients(coeff power.Coefficients) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = power.NewProbe(coeff)
}

// Retain increments the facade's reference count. A Simulator with a
// positive reference count is kept alive by Close until every Release call
// balances it.
func (s *Simulator) Retain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refcount++
}

// Release decrements the facade's reference count.
func (s *Simulator) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refcount > 0 {
		s.refcount--
	}
}

// Start prepares the facade to begin advancing time; it must be called
// after Open and before StepUntil or Run.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return errors.Errorf(errors.SimulatorNotOpen)
	}
	s.state = stateRunning
	return nil
}

// StepUntil advances every registered core, and the event queue, up to
// deadline, ticking each core once per unit of simulated time between the
// queue's current time and deadline. It returns the queue's new current
// time. This is the entry point the collaborating model's own host loop
// relies on exclusively: calling Run/Join is optional, and a host that
// only ever calls StepUntil in a loop is a fully supported usage.
func (s *Simulator) StepUntil(deadline uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return 0, errors.Errorf(errors.SimulatorNotOpen)
	}

	for s.queue.Now() < deadline {
		for _, c := range s.cores {
			if err := c.Tick(); err != nil {
				return s.queue.Now(), err
			}
		}
		s.queue.RunUntil(s.queue.Now() + 1)
	}

	return s.queue.Now(), nil
}

// Run starts a background goroutine that repeatedly calls StepUntil in
// small increments until Stop is called. Most hosts never call Run at
// all, preferring to drive the simulator with their own StepUntil loop;
// Run exists for the host that wants the simulator to free-run instead.
func (s *Simulator) Run() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return errors.Errorf(errors.SimulatorNotOpen)
	}
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		for {
			select {
			case <-stopCh:
				return
			default:
			}

			s.mu.Lock()
			now := s.queue.Now()
			s.mu.Unlock()

			if _, err := s.StepUntil(now + 1); err != nil {
				s.mu.Lock()
				s.runErr = err
				s.mu.Unlock()
				return
			}
		}
	}()

	return nil
}

// Join blocks until a goroutine started by Run has stopped, returning
// whatever error it last encountered.
func (s *Simulator) Join() error {
	s.runWG.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Stop signals a goroutine started by Run to exit. It is a no-op if Run
// was never called.
func (s *Simulator) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
}

// Close tears the facade down. A Simulator that is still retained by a
// positive reference count is not closed; Close must be called again
// after every Release.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refcount > 0 {
		return nil
	}
	s.state = stateClosed
	s.cores = nil
	return nil
}

// GetInstantPower samples every registered core's power and returns the
// sum, mirroring the collaborating model's get_instant_power, which
// reports one instantaneous figure for the whole chip rather than a report
// tree.
func (s *Simulator) GetInstantPower() power.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total power.Sample
	for _, c := range s.cores {
		sample := s.power.Sample(c.CSRFile())
		total.Dynamic += sample.Dynamic
		total.Static += sample.Static
		total.Total += sample.Total
	}
	return total
}

// ReportGet returns the same aggregate GetInstantPower does. A full report
// tree (per-component breakdown, ImageMagick-rendered dumps) is out of
// scope for this module; this is the one leaf any caller of report_get in
// the collaborating model actually needs from the instruction core.
func (s *Simulator) ReportGet() power.Sample {
	return s.GetInstantPower()
}

package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concrete PauseView backed by a set of paused module names. The
// zero value pauses nothing.
type Pauses struct {
	paused map[string]bool
}

func NewPauses(modules ...string) *Pauses {
	p := &Pauses{paused: make(map[string]bool)}
	for _, m := range modules {
		p.paused[m] = true
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.paused == nil {
		return false
	}
	return p.paused[module]
}

func (p *Pauses) SetPaused(module string, paused bool) {
	if p.paused == nil {
		p.paused = make(map[string]bool)
	}
	if paused {
		p.paused[module] = true
		return
	}
	delete(p.paused, module)
}

// Package resource provides a small RAII-style guard for resources that
// must be released on every exit path, including panics: loop devices,
// temporary mounts, and anything else acquired with a release-on-Close
// lifecycle.
package resource

import (
	log "github.com/sirupsen/logrus"
)

// Guard holds an acquired resource and its release function. A zero Guard
// is inert: Release on it is a no-op.
type Guard struct {
	name    string
	release func() error
	done    bool
}

// Acquire runs acquire and wraps its release in a Guard. If acquire
// returns an error, no Guard is produced and release is never called.
func Acquire(name string, acquire func() (release func() error, err error)) (*Guard, error) {
	release, err := acquire()
	if err != nil {
		return nil, err
	}
	log.WithField("resource", name).Debug("acquired")
	return &Guard{name: name, release: release}, nil
}

// Release runs the guard's release function exactly once, even if Release
// is called more than once or the caller is unwinding from a panic. Errors
// are logged rather than returned, since Release is almost always called
// from a defer where there is no good way to surface them.
func (g *Guard) Release() {
	if g == nil || g.done {
		return
	}
	g.done = true
	if g.release == nil {
		return
	}
	if err := g.release(); err != nil {
		log.WithError(err).WithField("resource", g.name).Error("failed to release resource")
	} else {
		log.WithField("resource", g.name).Debug("released")
	}
}

// Chain runs fn with guard released on every exit path, including a panic
// inside fn, which is re-panicked after cleanup runs.
func Chain(guard *Guard, fn func() error) (err error) {
	defer guard.Release()
	return fn()
}

package inference

import (
	"fmt"
	"sync"

	"github.com/BaSui01/interiorlens/types"
)

// ErrModelUnavailable is returned when the model could not be loaded.
var ErrModelUnavailable = types.NewError(types.ErrModelUnavailable, "model unavailable").
	WithHTTPStatus(503)

// LoadFunc loads a model.
type LoadFunc func() (Model, error)

// LazyModel loads its model exactly once, on the first Get. A failed load is
// remembered and reported on every later call.
type LazyModel struct {
	once  sync.Once
	load  LoadFunc
	model Model
	err   error
}

// NewLazyModel creates a lazily loaded model.
func NewLazyModel(load LoadFunc) *LazyModel {
	return &LazyModel{load: load}
}

// StaticModel wraps an already loaded model.
func StaticModel(m Model) *LazyModel {
	return NewLazyModel(func() (Model, error) { return m, nil })
}

// Get returns the model, loading it on first use. Errors match
// ErrModelUnavailable under errors.Is.
func (l *LazyModel) Get() (Model, error) {
	l.once.Do(func() {
		m, err := l.safeLoad()
		if err == nil && m == nil {
			err = fmt.Errorf("loader returned no model")
		}
		if err == nil {
			err = m.Info().Validate()
		}
		if err != nil {
			l.err = types.NewError(types.ErrModelUnavailable, "model unavailable").
				WithHTTPStatus(503).
				WithCause(err)
			return
		}
		l.model = m
	})
	return l.model, l.err
}

func (l *LazyModel) safeLoad() (m Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model loader panicked: %v", r)
		}
	}()
	return l.load()
}

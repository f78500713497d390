package ai

import (
	"errors"
	"fmt"

	"detectserver/internal/config"
	"detectserver/internal/logger"
)

// Registry maps model names to loaded capabilities. It is immutable after
// construction and safe for concurrent reads.
type Registry struct {
	models map[string]Capability
	names  []string
}

// Loader builds the capability for a single configured model.
type Loader func(model config.ModelConfig) (Capability, error)

// NewRegistry creates a registry from already loaded capabilities. Names
// keep the order given by the names slice.
func NewRegistry(names []string, models map[string]Capability) (*Registry, error) {
	copied := make(map[string]Capability, len(models))
	for _, name := range names {
		capability, ok := models[name]
		if !ok || capability == nil {
			return nil, fmt.Errorf("model %s has no capability", name)
		}
		copied[name] = capability
	}
	if len(copied) != len(models) {
		return nil, errors.New("registry names and models do not match")
	}

	return &Registry{
		models: copied,
		names:  append([]string(nil), names...),
	}, nil
}

// LoadRegistry loads every configured model. If any model fails to load the
// ones already loaded are closed and the error is returned.
func LoadRegistry(models []config.ModelConfig, load Loader, logger *logger.Logger) (*Registry, error) {
	loaded := make(map[string]Capability, len(models))
	names := make([]string, 0, len(models))

	for _, mc := range models {
		capability, err := load(mc)
		if err != nil {
			for name, c := range loaded {
				if cerr := c.Close(); cerr != nil {
					logger.Warning("Failed to close model %s: %v", name, cerr)
				}
			}
			return nil, fmt.Errorf("failed to load model %s from %s: %w", mc.Name, mc.Path, err)
		}
		loaded[mc.Name] = capability
		names = append(names, mc.Name)
		logger.Info("Loaded model %s from %s", mc.Name, mc.Path)
	}

	return NewRegistry(names, loaded)
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	capability, ok := r.models[name]
	return capability, ok
}

// Has reports whether name is a registered model.
func (r *Registry) Has(name string) bool {
	_, ok := r.models[name]
	return ok
}

// Names returns the registered model names in display order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Close releases every capability.
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.names {
		if err := r.models[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

package dfilter

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Plugin contributes filter functions to a registry. Init runs once per
// InitAll and registers the plugin's functions; Cleanup, when set, runs in
// reverse registration order during CleanupAll.
type Plugin struct {
	Name    string
	Init    func(reg FunctionRegistrar) error
	Cleanup func()
}

// PluginRegistry collects plugins and drives their lifecycle against a
// StaticRegistry. Register all plugins first, then InitAll exactly once;
// after InitAll the function table is frozen.
type PluginRegistry struct {
	mu      sync.Mutex
	log     logrus.FieldLogger
	plugins []Plugin
	active  []Plugin
	inited  bool
}

// NewPluginRegistry returns an empty plugin registry. A nil logger falls
// back to the logrus standard logger.
func NewPluginRegistry(log logrus.FieldLogger) *PluginRegistry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PluginRegistry{log: log}
}

// Register queues a plugin for initialization. Registering after InitAll is
// an error.
func (pr *PluginRegistry) Register(p Plugin) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.inited {
		return errorf(PluginError, LocEmpty, "cannot register plugin %q after initialization", p.Name)
	}
	if p.Init == nil {
		return errorf(PluginError, LocEmpty, "plugin %q has no init function", p.Name)
	}
	for _, q := range pr.plugins {
		if q.Name == p.Name {
			return errorf(PluginError, LocEmpty, "plugin %q registered twice", p.Name)
		}
	}
	pr.plugins = append(pr.plugins, p)
	return nil
}

// InitAll initializes every registered plugin against reg in registration
// order, then freezes reg. A plugin whose Init fails is logged and skipped;
// the remaining plugins still initialize. Only successfully initialized
// plugins take part in CleanupAll.
func (pr *PluginRegistry) InitAll(reg *StaticRegistry) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.inited {
		return
	}
	pr.inited = true
	for _, p := range pr.plugins {
		if err := p.Init(reg); err != nil {
			pr.log.WithFields(logrus.Fields{
				"plugin": p.Name,
				"error":  err,
			}).Warn("plugin initialization failed, skipping")
			continue
		}
		pr.active = append(pr.active, p)
	}
	reg.Freeze()
}

// CleanupAll runs the cleanup hooks of all initialized plugins in reverse
// initialization order.
func (pr *PluginRegistry) CleanupAll() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	for i := len(pr.active) - 1; i >= 0; i-- {
		if pr.active[i].Cleanup != nil {
			pr.active[i].Cleanup()
		}
	}
	pr.active = nil
}

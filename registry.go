package pixelpipe

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// registryMu guards the global operator registry.
var registryMu sync.RWMutex
var registry = map[string]Operator{}

// deviceErrorCount is the per-session GPU failure counter: once it
// reaches deviceErrorThreshold, GPU dispatch is disabled process-wide
// until the process restarts.
var deviceErrorCount atomic.Int64

const deviceErrorThreshold = 5

// RegisterOperator adds an operator to the global read-only registry under
// its descriptor's canonical name. Intended to be called from an
// operator package's init(), mirroring the driver's expectation that the
// registry's lifetime outlives any pipeline.
//
// RegisterOperator panics if name is already registered, since two
// operators sharing a canonical name is a build-time programming error,
// not a runtime condition to recover from.
func RegisterOperator(op Operator) {
	name := op.Descriptor().Name
	if name == "" {
		panic("pixelpipe: RegisterOperator: empty canonical name")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("pixelpipe: operator %q already registered", name))
	}
	registry[name] = op
}

// LookupOperator returns the operator registered under name, if any.
func LookupOperator(name string) (Operator, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	op, ok := registry[name]
	return op, ok
}

// RegisteredOperators returns every registered operator's canonical name,
// sorted, suitable for Build's "one node per operator in the registry".
func RegisteredOperators() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unregisterAllOperators clears the registry. Test-only: production code
// never needs to tear down the registry, since its lifetime is the
// process.
func unregisterAllOperators() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string]Operator{}
}

// recordDeviceFailure increments the per-session GPU failure counter and
// reports whether the threshold has now been reached.
func recordDeviceFailure() (disableGPU bool) {
	return deviceErrorCount.Add(1) >= deviceErrorThreshold
}

// resetDeviceFailures clears the per-session counter. Test-only.
func resetDeviceFailures() {
	deviceErrorCount.Store(0)
}

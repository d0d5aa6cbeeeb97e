package operators

import (
	"fmt"
	"slices"
	"sync"

	"photoflow/internal/engine"
)

// Constructor creates an operator of one type.
type Constructor func(opts engine.Options) *engine.Operator

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register makes an operator type available to New. Registering a type twice
// replaces the constructor.
func Register(typ string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[typ] = ctor
}

// New creates an operator of type typ.
func New(typ string, opts engine.Options) (*engine.Operator, error) {
	mu.RLock()
	ctor, ok := registry[typ]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("operator type not found: %s", typ)
	}
	return ctor(opts), nil
}

// IsValidType reports whether typ is registered.
func IsValidType(typ string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[typ]
	return ok
}

// Types returns the registered type names, sorted.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func init() {
	// sources
	Register(LoadDef.Type, NewLoad)
	Register(ColorDef.Type, NewColor)
	Register(AiryDiskDef.Type, NewAiryDisk)

	// per-photo transforms
	Register(GammaDef.Type, NewGamma)
	Register(LevelPercentileDef.Type, NewLevelPercentile)
	Register(SelectiveLabDef.Type, NewSelectiveLab)
	Register(RotateDef.Type, NewRotate)
	Register(ScaleDef.Type, NewScale)
	Register(BlurDef.Type, NewBlur)
	Register(MorphologyDef.Type, NewMorphology)
	Register(DebayerDef.Type, NewDebayer)

	// joins and sinks
	Register(FlatFieldDef.Type, NewFlatField)
	Register(CompareDef.Type, NewCompare)
	Register(SaveDef.Type, NewSave)
}

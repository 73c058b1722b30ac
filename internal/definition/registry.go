package definition

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/uibind/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
// The slices keep load order.
type snapshot struct {
	apps     map[string]model.AppDefinition
	models   map[string]model.ModelDefinition
	stores   map[string]model.StoreDefinition
	views    map[string]model.ViewDefinition
	modelSeq []model.ModelDefinition
	storeSeq []model.StoreDefinition
	viewSeq  []model.ViewDefinition
	routes   []model.RouteDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.AppDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions. Later definitions win on duplicate IDs.
func (r *Registry) Replace(defs []model.AppDefinition) {
	s := &snapshot{
		apps:   make(map[string]model.AppDefinition, len(defs)),
		models: make(map[string]model.ModelDefinition),
		stores: make(map[string]model.StoreDefinition),
		views:  make(map[string]model.ViewDefinition),
	}

	var checksumParts []string

	for _, def := range defs {
		s.apps[def.App] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, m := range def.Models {
			s.models[m.Name] = m
		}
		for _, st := range def.Stores {
			s.stores[st.ID] = st
		}
		for _, v := range def.Views {
			s.views[v.ID] = v
		}
		s.routes = append(s.routes, def.Routes...)
	}

	// Ordered views of the maps so duplicates collapse to the winner.
	for _, def := range defs {
		for _, m := range def.Models {
			if !slices.ContainsFunc(s.modelSeq, func(x model.ModelDefinition) bool { return x.Name == m.Name }) {
				s.modelSeq = append(s.modelSeq, s.models[m.Name])
			}
		}
		for _, st := range def.Stores {
			if !slices.ContainsFunc(s.storeSeq, func(x model.StoreDefinition) bool { return x.ID == st.ID }) {
				s.storeSeq = append(s.storeSeq, s.stores[st.ID])
			}
		}
		for _, v := range def.Views {
			if !slices.ContainsFunc(s.viewSeq, func(x model.ViewDefinition) bool { return x.ID == v.ID }) {
				s.viewSeq = append(s.viewSeq, s.views[v.ID])
			}
		}
	}

	slices.Sort(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetApp returns the application definition with the given name.
func (r *Registry) GetApp(app string) (model.AppDefinition, bool) {
	d, ok := r.current().apps[app]
	return d, ok
}

// GetModel returns the model definition with the given name.
func (r *Registry) GetModel(name string) (model.ModelDefinition, bool) {
	m, ok := r.current().models[name]
	return m, ok
}

// GetStore returns the store definition with the given ID.
func (r *Registry) GetStore(id string) (model.StoreDefinition, bool) {
	s, ok := r.current().stores[id]
	return s, ok
}

// GetView returns the view definition with the given ID.
func (r *Registry) GetView(id string) (model.ViewDefinition, bool) {
	v, ok := r.current().views[id]
	return v, ok
}

// AllApps returns all application definitions sorted by name.
func (r *Registry) AllApps() []model.AppDefinition {
	s := r.current()
	defs := make([]model.AppDefinition, 0, len(s.apps))
	for _, d := range s.apps {
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b model.AppDefinition) int { return strings.Compare(a.App, b.App) })
	return defs
}

// Models returns all model definitions in load order.
func (r *Registry) Models() []model.ModelDefinition {
	return slices.Clone(r.current().modelSeq)
}

// Stores returns all store definitions in load order.
func (r *Registry) Stores() []model.StoreDefinition {
	return slices.Clone(r.current().storeSeq)
}

// Views returns all view definitions in load order.
func (r *Registry) Views() []model.ViewDefinition {
	return slices.Clone(r.current().viewSeq)
}

// Routes returns every declared route in load order.
func (r *Registry) Routes() []model.RouteDefinition {
	return slices.Clone(r.current().routes)
}

// Count returns the number of loaded application definitions.
func (r *Registry) Count() int {
	return len(r.current().apps)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

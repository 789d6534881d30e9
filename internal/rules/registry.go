package rules

import "github.com/rotisserie/eris"

// ErrUnknownRetailer is returned for retailer identifiers with no rule set.
var ErrUnknownRetailer = eris.New("rules: unknown retailer")

// Registry maps retailer identifiers to their rule sets.
type Registry struct {
	sets  map[string]*RuleSet
	order []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sets: make(map[string]*RuleSet),
	}
}

// Register validates rs and adds it. Registering a name twice is an error.
func (r *Registry) Register(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	if _, ok := r.sets[rs.Name()]; ok {
		return eris.Errorf("rules: retailer %q already registered", rs.Name())
	}
	r.sets[rs.Name()] = rs
	r.order = append(r.order, rs.Name())
	return nil
}

// Replace validates rs and adds it, overriding any rule set of the same
// name while keeping that name's original position.
func (r *Registry) Replace(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	if _, ok := r.sets[rs.Name()]; !ok {
		r.order = append(r.order, rs.Name())
	}
	r.sets[rs.Name()] = rs
	return nil
}

// Get returns the rule set for name.
func (r *Registry) Get(name string) (*RuleSet, error) {
	rs, ok := r.sets[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownRetailer, "rules: get %q", name)
	}
	return rs, nil
}

// Select returns the rule sets for names in the order given, skipping
// repeats. An empty names slice selects every registered retailer. Any
// unknown name fails the whole selection.
func (r *Registry) Select(names []string) ([]*RuleSet, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	seen := make(map[string]bool, len(names))
	result := make([]*RuleSet, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		rs, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, rs)
	}
	return result, nil
}

// All returns all rule sets in registration order.
func (r *Registry) All() []*RuleSet {
	result := make([]*RuleSet, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.sets[name])
	}
	return result
}

// AllNames returns all registered retailer names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

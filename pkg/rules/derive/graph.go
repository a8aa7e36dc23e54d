package derive

import (
	"sort"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// RuleNode is a derived attribute in the dependency graph.
type RuleNode struct {
	// Attribute is the derived attribute this node computes.
	Attribute Attribute

	// Expr is the parsed rule. It is nil when the rule failed to parse.
	Expr ast.Expression

	// Dependencies are the inputs that must be present before the rule runs:
	// the declared list when there is one, otherwise every identifier the
	// rule reads. Sorted and de-duplicated.
	Dependencies []string

	// Reads holds every identifier the rule reads, declared or not.
	Reads []string

	// ParseErr is the parse failure, if any.
	ParseErr error
}

// inputs returns the union of declared dependencies and read identifiers.
func (n *RuleNode) inputs() []string {
	return dedupe(append(append([]string(nil), n.Dependencies...), n.Reads...))
}

// Plan is the dependency analysis for one set of requested attributes.
type Plan struct {
	// Nodes holds every derived attribute reachable from the request.
	Nodes map[string]*RuleNode
	// Edges maps each node to the derived attributes it depends on.
	Edges map[string][]string
	// Order lists the acyclic nodes, dependencies before dependents.
	Order []string
	// Cycles maps each attribute on a cycle to the sorted members of its cycle.
	Cycles map[string][]string
}

// CycleGroups returns each distinct cycle once, sorted by first member.
func (p *Plan) CycleGroups() [][]string {
	seen := make(map[string]bool)
	var groups [][]string
	for _, name := range sortedNames(p.Cycles) {
		if seen[name] {
			continue
		}
		group := p.Cycles[name]
		for _, member := range group {
			seen[member] = true
		}
		groups = append(groups, group)
	}
	return groups
}

// Plan builds the dependency graph for requested and orders it. Names that are
// not derived attributes are ignored here; Run reports them.
func (e *Engine) Plan(attrs map[string]Attribute, requested []string) *Plan {
	p := &Plan{
		Nodes:  make(map[string]*RuleNode),
		Edges:  make(map[string][]string),
		Cycles: make(map[string][]string),
	}

	var collect func(name string)
	collect = func(name string) {
		if _, done := p.Nodes[name]; done {
			return
		}
		attr, ok := attrs[name]
		if !ok {
			return
		}
		d, ok := attr.Derived()
		if !ok {
			return
		}
		node := e.buildNode(attr, d)
		p.Nodes[name] = node

		// A rule is ordered after every derived attribute it declares or
		// reads, so an incomplete declaration cannot hide an edge.
		edges := []string{}
		for _, dep := range node.inputs() {
			if depAttr, ok := attrs[dep]; ok && depAttr.IsDerived() {
				edges = append(edges, dep)
			}
		}
		p.Edges[name] = edges
		for _, dep := range edges {
			collect(dep)
		}
	}
	for _, name := range requested {
		collect(name)
	}

	p.findCycles()
	p.sortTopologically()
	return p
}

func (e *Engine) buildNode(attr Attribute, d Derived) *RuleNode {
	node := &RuleNode{Attribute: attr}
	expr := d.Expr
	if expr == nil {
		var err error
		expr, err = e.rules.parse(d.Rule)
		if err != nil {
			node.ParseErr = err
		}
	}
	node.Expr = expr
	if expr != nil {
		node.Reads = ast.Identifiers(expr)
	}

	if len(d.Dependencies) > 0 {
		node.Dependencies = dedupe(d.Dependencies)
		if expr != nil && e.config.WarnUndeclaredDependencies {
			declared := make(map[string]bool, len(node.Dependencies))
			for _, dep := range node.Dependencies {
				declared[dep] = true
			}
			for _, id := range node.Reads {
				if !declared[id] {
					e.logger.Warn("rule reads an undeclared dependency",
						"attribute", attr.Name,
						"identifier", id,
					)
				}
			}
		}
	} else {
		node.Dependencies = node.Reads
	}
	return node
}

// findCycles runs Tarjan's strongly connected components algorithm over the
// graph. Every member of a component with more than one node, or of a node
// depending on itself, is recorded as cyclic.
func (p *Plan) findCycles() {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range p.Edges[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] != indices[v] {
			return
		}
		var component []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		if len(component) == 1 && !contains(p.Edges[v], v) {
			return
		}
		sort.Strings(component)
		for _, member := range component {
			p.Cycles[member] = component
		}
	}

	for _, name := range sortedNames(p.Nodes) {
		if _, seen := indices[name]; !seen {
			strongConnect(name)
		}
	}
}

// sortTopologically orders the acyclic nodes with a depth-first post-order
// walk in name order, so the result is deterministic.
func (p *Plan) sortTopologically() {
	visited := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		if _, cyclic := p.Cycles[name]; cyclic {
			return
		}
		for _, dep := range p.Edges[name] {
			visit(dep)
		}
		p.Order = append(p.Order, name)
	}
	for _, name := range sortedNames(p.Nodes) {
		visit(name)
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

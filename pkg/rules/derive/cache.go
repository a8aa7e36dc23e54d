package derive

import (
	"sync"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/rules/eval"
)

type parsedRule struct {
	expr ast.Expression
	err  error
}

// ruleCache memoises parsed rules by source text. Parse failures are cached
// as well; parsing is deterministic.
type ruleCache struct {
	mu       sync.RWMutex
	parser   *parser.Parser
	entries  map[string]parsedRule
	observer eval.CacheObserver
}

func newRuleCache(p *parser.Parser) *ruleCache {
	return &ruleCache{parser: p, entries: make(map[string]parsedRule)}
}

func (c *ruleCache) parse(source string) (ast.Expression, error) {
	c.mu.RLock()
	entry, ok := c.entries[source]
	c.mu.RUnlock()
	if ok {
		if c.observer != nil {
			c.observer.RecordHit("rule_ast")
		}
		return entry.expr, entry.err
	}
	if c.observer != nil {
		c.observer.RecordMiss("rule_ast")
	}

	expr, err := c.parser.Parse(source)
	entry = parsedRule{expr: expr, err: err}

	c.mu.Lock()
	if existing, ok := c.entries[source]; ok {
		entry = existing
	} else {
		c.entries[source] = entry
	}
	size := len(c.entries)
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.UpdateSize("rule_ast", size)
	}
	return entry.expr, entry.err
}

func (c *ruleCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// reset drops every cached rule, used when the catalog is reloaded.
func (c *ruleCache) reset() {
	c.mu.Lock()
	c.entries = make(map[string]parsedRule)
	c.mu.Unlock()
	if c.observer != nil {
		c.observer.UpdateSize("rule_ast", 0)
	}
}

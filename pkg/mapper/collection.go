package mapper

import (
	"github.com/orneryd/nornicogm/pkg/entity"
)

// Collection is a lazy view over result rows. Rows become entities through
// the session's CreateModel on first access and are cached clean.
type Collection struct {
	session *Session
	rows    []any
	cache   map[int]entity.Entity
}

func newCollection(s *Session, rows []any) *Collection {
	return &Collection{session: s, rows: rows, cache: make(map[int]entity.Entity)}
}

// Len returns the number of rows.
func (c *Collection) Len() int { return len(c.rows) }

// At returns the entity for row i. Negative indexes count from the end.
func (c *Collection) At(i int) (entity.Entity, bool) {
	i, ok := c.index(i)
	if !ok {
		return nil, false
	}
	if e, ok := c.cache[i]; ok {
		return e, true
	}
	row, ok := c.rows[i].(map[string]any)
	if !ok {
		return nil, false
	}
	e := c.session.CreateModel(row, nil)
	e.Commit()
	c.cache[i] = e
	return e, true
}

// First returns the first entity.
func (c *Collection) First() (entity.Entity, bool) { return c.At(0) }

// Last returns the last entity.
func (c *Collection) Last() (entity.Entity, bool) { return c.At(-1) }

// Row returns row i as entity data, if it is one.
func (c *Collection) Row(i int) (map[string]any, bool) {
	i, ok := c.index(i)
	if !ok {
		return nil, false
	}
	row, ok := c.rows[i].(map[string]any)
	return row, ok
}

// Raw returns the rows as the executor produced them.
func (c *Collection) Raw() []any { return c.rows }

// Entities materializes every row that holds entity data.
func (c *Collection) Entities() []entity.Entity {
	out := make([]entity.Entity, 0, len(c.rows))
	for i := range c.rows {
		if e, ok := c.At(i); ok {
			out = append(out, e)
		}
	}
	return out
}

// Data returns the field data of every materialized entity.
func (c *Collection) Data() []map[string]any {
	entities := c.Entities()
	out := make([]map[string]any, len(entities))
	for i, e := range entities {
		out[i] = e.Data()
	}
	return out
}

// Set replaces the cached entity for row i.
func (c *Collection) Set(i int, e entity.Entity) {
	if i, ok := c.index(i); ok {
		c.cache[i] = e
	}
}

// Forget drops the cached entity for row i; the next At rebuilds it.
func (c *Collection) Forget(i int) {
	if i, ok := c.index(i); ok {
		delete(c.cache, i)
	}
}

func (c *Collection) index(i int) (int, bool) {
	if i < 0 {
		i += len(c.rows)
	}
	if i < 0 || i >= len(c.rows) {
		return 0, false
	}
	return i, true
}

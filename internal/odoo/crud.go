package odoo

import (
	"context"
	"encoding/json"
)

// Record is a raw Odoo record as returned by search_read/read. Relational
// fields keep the backend conventions: Many2one is [id, name] or false,
// Many2many/One2many is a list of ids.
type Record map[string]any

// Term is a single [field, operator, value] condition of an Odoo domain.
type Term [3]any

// Domain is an Odoo-style query filter, a list of condition triplets.
type Domain []Term

func Eq(field string, value any) Term {
	return Term{field, "=", value}
}

func Ilike(field, value string) Term {
	return Term{field, "ilike", value}
}

// SearchQuery holds the optional knobs of a search_read. Zero values get
// the backend-friendly defaults: limit 100, offset 0, no ordering.
type SearchQuery struct {
	Domain Domain
	Fields []string
	Limit  int
	Offset int
	Order  string
}

const defaultSearchLimit = 100

type callKWParams struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

func nonNilDomain(d Domain) Domain {
	if d == nil {
		return Domain{}
	}
	return d
}

func nonNilFields(f []string) []string {
	if f == nil {
		return []string{}
	}
	return f
}

// Search returns the ids of records matching domain.
func (c *Client) Search(ctx context.Context, model string, domain Domain, limit, offset int) ([]int64, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	var ids []int64
	err := c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "search",
		Args:   []any{nonNilDomain(domain)},
		Kwargs: map[string]any{"limit": limit, "offset": offset},
	}, true, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SearchRead searches and reads in one round trip.
func (c *Client) SearchRead(ctx context.Context, model string, q SearchQuery) ([]Record, error) {
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	var records []Record
	err := c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "search_read",
		Args:   []any{},
		Kwargs: map[string]any{
			"domain": nonNilDomain(q.Domain),
			"fields": nonNilFields(q.Fields),
			"limit":  q.Limit,
			"offset": q.Offset,
			"order":  q.Order,
		},
	}, true, &records)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Read fetches specific records by id, restricted to fields.
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	var records []Record
	err := c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "read",
		Args:   []any{ids},
		Kwargs: map[string]any{"fields": nonNilFields(fields)},
	}, true, &records)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SearchCount counts records matching domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	var count int
	err := c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "search_count",
		Args:   []any{nonNilDomain(domain)},
		Kwargs: map[string]any{},
	}, true, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (int64, error) {
	var id int64
	err := c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "create",
		Args:   []any{values},
		Kwargs: map[string]any{},
	}, true, &id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Update writes values onto the given records.
func (c *Client) Update(ctx context.Context, model string, ids []int64, values map[string]any) error {
	return c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "write",
		Args:   []any{ids, values},
		Kwargs: map[string]any{},
	}, true, nil)
}

// Delete unlinks the given records.
func (c *Client) Delete(ctx context.Context, model string, ids []int64) error {
	return c.callInto(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: "unlink",
		Args:   []any{ids},
		Kwargs: map[string]any{},
	}, true, nil)
}

// CallMethod invokes an arbitrary model method with caller-supplied args
// and kwargs.
func (c *Client) CallMethod(ctx context.Context, model, method string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return c.Call(ctx, callKWPath, callKWParams{
		Model:  model,
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	}, true)
}

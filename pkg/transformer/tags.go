package transformer

import "github.com/user/beacon"

// Tags merges a configured set of key/value pairs into every metric's
// tags, overwriting existing keys. This is the spec's one built-in
// transformer kind, configured from the `[transformers.tags]` table.
type Tags struct {
	Values map[string]string
}

// NewTags builds a Tags transformer from a fixed key/value set.
func NewTags(values map[string]string) *Tags {
	return &Tags{Values: values}
}

// Transform never drops a metric; it only merges tags.
func (t *Tags) Transform(_ beacon.Origin, m beacon.Metric) (beacon.Metric, bool) {
	if len(t.Values) == 0 {
		return m, true
	}
	out := m.Clone()
	if out.Tags == nil {
		out.Tags = make(map[string]string, len(t.Values))
	}
	for k, v := range t.Values {
		out.Tags[k] = v
	}
	return out, true
}

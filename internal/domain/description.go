package domain

import (
	"fmt"
	"time"
)

// OperationDescription is the round-trippable YAML/JSON shape of an
// Operation exchanged at the Request Facade boundary. It differs from
// Operation in two ways: fields the store computes (ID, Status,
// Version, CreatedAt/UpdatedAt) are absent on input, and timestamps are
// plain RFC 3339 strings so the facade can reject malformed ones before
// they ever reach the engine.
type OperationDescription struct {
	Title       string            `yaml:"title" json:"title"`
	Purpose     string            `yaml:"purpose,omitempty" json:"purpose,omitempty"`
	URL         string            `yaml:"url,omitempty" json:"url,omitempty"`
	StartsAt    string            `yaml:"starts_at,omitempty" json:"starts_at,omitempty"`
	EndsAt      string            `yaml:"ends_at,omitempty" json:"ends_at,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Components  []string          `yaml:"components,omitempty" json:"components,omitempty"`
	Locks       []string          `yaml:"locks,omitempty" json:"locks,omitempty"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	DependsOn   []int64           `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Operators   []string          `yaml:"operators,omitempty" json:"operators,omitempty"`
}

// ToOperation builds a planned Operation from the description. It does
// not assign an ID -- the Domain Store's counter does that.
func (d *OperationDescription) ToOperation() (*Operation, error) {
	op := &Operation{
		Title:       d.Title,
		Purpose:     d.Purpose,
		URL:         d.URL,
		Status:      StatusPlanned,
		Annotations: d.Annotations,
		Components:  d.Components,
		Locks:       d.Locks,
		Tags:        d.Tags,
		Operators:   d.Operators,
	}
	for _, id := range d.DependsOn {
		op.DependsOn = append(op.DependsOn, OperationID(id))
	}
	if d.StartsAt != "" {
		t, err := time.Parse(time.RFC3339, d.StartsAt)
		if err != nil {
			return nil, fmt.Errorf("starts_at: %w", err)
		}
		op.StartsAt = &t
	}
	if d.EndsAt != "" {
		t, err := time.Parse(time.RFC3339, d.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("ends_at: %w", err)
		}
		op.EndsAt = &t
	}
	return op, op.Validate()
}

// FromOperation renders op back into its round-trippable description,
// the inverse of ToOperation, used by the facade's YAML export endpoint.
func FromOperation(op *Operation) *OperationDescription {
	d := &OperationDescription{
		Title:       op.Title,
		Purpose:     op.Purpose,
		URL:         op.URL,
		Annotations: op.Annotations,
		Components:  op.Components,
		Locks:       op.Locks,
		Tags:        op.Tags,
		Operators:   op.Operators,
	}
	for _, id := range op.DependsOn {
		d.DependsOn = append(d.DependsOn, int64(id))
	}
	if op.StartsAt != nil {
		d.StartsAt = op.StartsAt.Format(time.RFC3339)
	}
	if op.EndsAt != nil {
		d.EndsAt = op.EndsAt.Format(time.RFC3339)
	}
	return d
}

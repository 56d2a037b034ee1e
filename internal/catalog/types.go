package catalog

import (
	"strings"
	"time"
)

// Identifier is the opaque catalog key (SKU) naming one item.
type Identifier string

// Pair is one label/value row lifted from a structured table.
type Pair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Pairs keeps table rows in document order.
type Pairs []Pair

// String renders the pairs as "label: value" lines in document order.
func (p Pairs) String() string {
	if len(p) == 0 {
		return ""
	}
	lines := make([]string, 0, len(p))
	for _, pair := range p {
		lines = append(lines, pair.Label+": "+pair.Value)
	}
	return strings.Join(lines, "\n")
}

// Columns is the fixed header of the exported table.
var Columns = []string{
	"Identifier",
	"Name",
	"Description",
	"Specifications",
	"ShippingInfo",
	"ImageURL",
}

// Record is the structured extraction result for one identifier. It is built
// inside a single task and never mutated after it is handed to the aggregator.
type Record struct {
	Identifier     Identifier `json:"identifier"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Specifications Pairs      `json:"specifications"`
	ShippingInfo   Pairs      `json:"shipping_info"`
	ImageURL       string     `json:"image_url"`
}

// Row returns the record as one value per entry in Columns.
func (r Record) Row() []string {
	return []string{
		string(r.Identifier),
		r.Name,
		r.Description,
		r.Specifications.String(),
		r.ShippingInfo.String(),
		r.ImageURL,
	}
}

// Field names one of the five independently extracted record fields.
type Field string

// Extracted fields, in extraction order.
const (
	FieldName           Field = "name"
	FieldDescription    Field = "description"
	FieldSpecifications Field = "specifications"
	FieldShippingInfo   Field = "shipping_info"
	FieldImageURL       Field = "image_url"
)

// Fields lists every extracted field in extraction order.
var Fields = []Field{
	FieldName,
	FieldDescription,
	FieldSpecifications,
	FieldShippingInfo,
	FieldImageURL,
}

// FieldDiagnostic records a soft failure that degraded one field to empty.
type FieldDiagnostic struct {
	Field Field
	Err   error
}

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind string

// Outcome variants.
const (
	OutcomeFound     OutcomeKind = "found"
	OutcomeNotListed OutcomeKind = "not_listed"
	OutcomeFailed    OutcomeKind = "failed"
)

// Task is one unit of work: a single identifier at its input position.
type Task struct {
	Seq int
	ID  Identifier
}

// Outcome is the single result reported for every submitted task.
//   - Found carries Record and any field diagnostics.
//   - NotListed carries only the identifier.
//   - Failed carries Err describing why the task was aborted.
type Outcome struct {
	Kind        OutcomeKind
	Task        Task
	Record      Record
	Diagnostics []FieldDiagnostic
	Err         error
	Duration    time.Duration
}

// Found builds a successful outcome.
func Found(task Task, rec Record, diags []FieldDiagnostic) Outcome {
	return Outcome{Kind: OutcomeFound, Task: task, Record: rec, Diagnostics: diags}
}

// NotListed builds an outcome for an item whose page never rendered its marker.
func NotListed(task Task) Outcome {
	return Outcome{Kind: OutcomeNotListed, Task: task}
}

// Failed builds an outcome for a task aborted by an unexpected error.
func Failed(task Task, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Task: task, Err: err}
}

// Reason returns the failure text, or "" for non-failed outcomes.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Summary counts what happened during one export run.
type Summary struct {
	Submitted      int `json:"submitted"`
	Found          int `json:"found"`
	NotListed      int `json:"not_listed"`
	Failed         int `json:"failed"`
	Duplicates     int `json:"duplicates"`
	DegradedFields int `json:"degraded_fields"`
	WriteErrors    int `json:"write_errors"`
}

// Completed reports how many outcomes have been consumed.
func (s Summary) Completed() int {
	return s.Found + s.NotListed + s.Failed + s.Duplicates + s.WriteErrors
}

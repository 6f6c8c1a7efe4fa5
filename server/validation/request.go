// Package validation turns a raw request body into a processing.Dispute for
// the active input shape, and enforces the prompt token budget.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/teilomillet/dispute/config"
	"github.com/teilomillet/dispute/errors"
	"github.com/teilomillet/dispute/server/processing"
)

// Messages returned to clients for rejected input.
const (
	MsgNotJSON           = "Request must be in JSON format"
	MsgInvalidBody       = "Request body must be a JSON object"
	MsgMissingFields     = "Missing required fields"
	MsgMissingOriginal   = "Missing original object"
	MsgInvalidFieldType  = "Invalid field type"
	MsgPromptTooLong     = "Dispute details are too long"
	MsgBodyTooLarge      = "Request body too large"
	MsgUnsupportedAmount = "default_amount must be a string or number"
)

var validate = validator.New()

func init() {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})
}

// FlatRequest is the flat input shape. All three fields are required and
// must be non-empty.
type FlatRequest struct {
	Creditor      string `json:"creditor" validate:"required"`
	DefaultAmount Amount `json:"default_amount" validate:"required"`
	BreachDetails string `json:"breach_details" validate:"required"`
}

// NestedRequest is the nested input shape. Keys of Original keep their
// encounter order so breach fragments are joined in the order sent.
type NestedRequest struct {
	Original *orderedmap.OrderedMap[string, json.RawMessage] `json:"original"`
}

// Extractor validates request bodies for one configured input shape.
type Extractor struct {
	cfg config.DisputeConfig
}

// NewExtractor creates an Extractor for cfg.Shape.
func NewExtractor(cfg config.DisputeConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Shape returns the input shape this extractor accepts.
func (e *Extractor) Shape() string {
	return e.cfg.Shape
}

// Extract decodes body and returns the normalized dispute. Every failure is
// a validation error; the body is never mutated.
func (e *Extractor) Extract(body []byte) (*processing.Dispute, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.NewValidationError("", MsgInvalidBody, nil)
	}

	switch e.cfg.Shape {
	case config.ShapeNested:
		return e.extractNested(trimmed)
	default:
		return e.extractFlat(trimmed)
	}
}

func (e *Extractor) extractFlat(body []byte) (*processing.Dispute, error) {
	var req FlatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, decodeError(err)
	}

	if err := validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("", MsgMissingFields, MissingFieldsError(err))
	}

	return &processing.Dispute{
		Shape:         config.ShapeFlat,
		Creditor:      req.Creditor,
		DefaultAmount: string(req.DefaultAmount),
		BreachDetails: req.BreachDetails,
	}, nil
}

func (e *Extractor) extractNested(body []byte) (*processing.Dispute, error) {
	var req NestedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.NewValidationError("", MsgMissingOriginal, err)
	}
	if req.Original == nil || req.Original.Len() == 0 {
		return nil, errors.NewValidationError("", MsgMissingOriginal, nil)
	}

	original := req.Original
	d := &processing.Dispute{Shape: config.ShapeNested}

	var first, last string
	if raw, ok := original.Get("names"); ok {
		var names map[string]json.RawMessage
		if json.Unmarshal(raw, &names) == nil {
			first = stringValue(names["first_name"])
			last = stringValue(names["last_name"])
		}
	}
	d.Name = fullName(first, last, e.cfg.UnknownName)

	if raw, ok := original.Get("post_content"); ok {
		d.PostContent = strings.TrimSpace(stringValue(raw))
	}

	d.BreachDetails = joinFragments(original, e.cfg.FragmentPrefix, e.cfg.NoBreachText)

	return d, nil
}

// fullName joins trimmed name parts, falling back to unknown when both are blank.
func fullName(first, last, unknown string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" && last == "" {
		return unknown
	}
	return strings.TrimSpace(first + " " + last)
}

// joinFragments collects the string values of keys starting with prefix in
// encounter order, trimmed, skipping blanks, separated by a blank line.
func joinFragments(original *orderedmap.OrderedMap[string, json.RawMessage], prefix, none string) string {
	var fragments []string
	for pair := original.Oldest(); pair != nil; pair = pair.Next() {
		if !strings.HasPrefix(pair.Key, prefix) {
			continue
		}
		if text := strings.TrimSpace(stringValue(pair.Value)); text != "" {
			fragments = append(fragments, text)
		}
	}
	if len(fragments) == 0 {
		return none
	}
	return strings.Join(fragments, "\n\n")
}

// stringValue returns raw as a string when it holds a JSON string, else "".
func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errors.NewValidationError("", fmt.Sprintf("%s: %s must be a %s", MsgInvalidFieldType, typeErr.Field, typeErr.Type), err)
	}
	var amountErr *AmountError
	if errors.As(err, &amountErr) {
		return errors.NewValidationError("", MsgUnsupportedAmount, err)
	}
	return errors.NewValidationError("", MsgInvalidBody, err)
}

// MissingFieldsError lists the fields that failed validation, for logging.
func MissingFieldsError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("missing fields: %s", strings.Join(fields, ", "))
}

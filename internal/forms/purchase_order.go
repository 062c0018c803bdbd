package forms

import (
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Purchase order wizard steps, in order.
const (
	StepVendor = "vendor"
	StepLines  = "lines"
	StepReview = "review"
)

var poSteps = []string{StepVendor, StepLines, StepReview}

// PurchaseOrder is the state of the multi-step purchase order wizard.
type PurchaseOrder struct {
	Step         string   `json:"step"`
	Vendor       string   `json:"vendor"`
	Department   string   `json:"department"`
	DeliveryDate string   `json:"delivery_date"`
	Lines        []POLine `json:"lines"`
	Notes        string   `json:"notes"`
}

// POLine is one ordered part.
type POLine struct {
	PartNumber string  `json:"part_number"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

// NewPurchaseOrder returns a blank order with one empty line.
func NewPurchaseOrder() PurchaseOrder {
	return PurchaseOrder{Step: StepVendor, Lines: []POLine{{Quantity: 1}}}
}

// Total returns the sum of quantity times unit price over all lines.
func (po PurchaseOrder) Total() float64 {
	var total float64
	for _, l := range po.Lines {
		total += float64(l.Quantity) * l.UnitPrice
	}
	return total
}

// Apply returns the state after a. The receiver is not modified.
func (po PurchaseOrder) Apply(a Action) (PurchaseOrder, error) {
	next := po
	next.Lines = slices.Clone(po.Lines)

	switch a.Type {
	case ActionSetField:
		switch a.Field {
		case "vendor":
			next.Vendor = a.Value
		case "department":
			next.Department = a.Value
		case "delivery_date":
			next.DeliveryDate = a.Value
		case "notes":
			next.Notes = a.Value
		default:
			return po, invalid("unknown purchase order field %q", a.Field)
		}

	case ActionAddLine:
		next.Lines = append(next.Lines, POLine{Quantity: 1})

	case ActionRemoveLine:
		if a.Line < 0 || a.Line >= len(next.Lines) {
			return po, invalid("line %d out of range", a.Line)
		}
		next.Lines = slices.Delete(next.Lines, a.Line, a.Line+1)

	case ActionSetLineField:
		if a.Line < 0 || a.Line >= len(next.Lines) {
			return po, invalid("line %d out of range", a.Line)
		}
		line := &next.Lines[a.Line]
		switch a.Field {
		case "part_number":
			line.PartNumber = a.Value
		case "quantity":
			n, err := parseQuantity(a.Value)
			if err != nil {
				return po, err
			}
			line.Quantity = n
		case "unit_price":
			f, err := parsePrice(a.Value)
			if err != nil {
				return po, err
			}
			line.UnitPrice = f
		default:
			return po, invalid("unknown line field %q", a.Field)
		}

	case ActionNextStep:
		i := slices.Index(poSteps, po.Step)
		if i == len(poSteps)-1 {
			return po, invalid("already on the last step")
		}
		if err := po.validateStep(po.Step); err != nil {
			return po, err
		}
		next.Step = poSteps[i+1]

	case ActionPrevStep:
		i := slices.Index(poSteps, po.Step)
		if i <= 0 {
			return po, invalid("already on the first step")
		}
		next.Step = poSteps[i-1]

	case ActionGoToStep:
		target := slices.Index(poSteps, a.Value)
		if target < 0 {
			return po, invalid("unknown step %q", a.Value)
		}
		// Forward jumps must pass every step in between.
		for _, s := range poSteps[:target] {
			if err := po.validateStep(s); err != nil {
				return po, err
			}
		}
		next.Step = a.Value

	case ActionReset:
		return NewPurchaseOrder(), nil

	default:
		return po, invalid("unsupported action %q", a.Type)
	}
	return next, nil
}

func (po PurchaseOrder) validateStep(step string) error {
	switch step {
	case StepVendor:
		return validation.ValidateStruct(&po,
			validation.Field(&po.Vendor, validation.Required),
			validation.Field(&po.Department, validation.Required),
			validation.Field(&po.DeliveryDate, validation.Required, validation.Date(time.DateOnly)),
		)
	case StepLines:
		return validation.ValidateStruct(&po,
			validation.Field(&po.Lines, validation.Required),
		)
	}
	return nil
}

// Validate checks the whole order.
func (po PurchaseOrder) Validate() error {
	return validation.ValidateStruct(&po,
		validation.Field(&po.Step, validation.Required, validation.In(StepVendor, StepLines, StepReview)),
		validation.Field(&po.Vendor, validation.Required, validation.Length(1, 120)),
		validation.Field(&po.Department, validation.Required),
		validation.Field(&po.DeliveryDate, validation.Required, validation.Date(time.DateOnly)),
		validation.Field(&po.Lines, validation.Required),
		validation.Field(&po.Notes, validation.Length(0, 2000)),
	)
}

// Validate checks one line.
func (l POLine) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.PartNumber, validation.Required),
		validation.Field(&l.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&l.UnitPrice, validation.Min(0.0)),
	)
}

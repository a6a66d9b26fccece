package payload

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// MinYearModel is the oldest model year the generator produces.
const MinYearModel = 1990

// OperatedWindowDays bounds how far back the first-operated date may lie.
const OperatedWindowDays = 365

// Payload is the flat field name to value map sent with the submission.
type Payload map[string]string

// Keys returns the payload field names in sorted order.
func (p Payload) Keys() []string {
	return sortedKeys(p)
}

// Submission is one fully specified calculator request. Construct it with NewSubmission so
// the option tables and cross-field rules are enforced.
type Submission struct {
	VehicleType          VehicleType          `validate:"enum"`
	YearModel            int                  `validate:"gte=1990"`
	MotivePower          MotivePower          `validate:"enum"`
	SecondaryMotivePower SecondaryMotivePower `validate:"omitempty,enum"`
	Axles                Axles                `validate:"enum"`
	AcquiredFrom         AcquiredFrom         `validate:"enum"`
	PurchasePrice        int                  `validate:"gte=1000,lte=100000"`
	UseTaxCredit         int                  `validate:"gte=0,lte=5000"`
	WeightType           WeightType           `validate:"enum"`
	ElectricType         ElectricType         `validate:"omitempty,enum"`
	UnladenRange         UnladenRange         `validate:"omitempty,enum"`
	GrossRange           GrossRange           `validate:"omitempty,enum"`
	TrailerType          TrailerType          `validate:"omitempty,enum"`
	Location             Location
	Operated             time.Time
	Purchased            time.Time
}

type enumerated interface {
	Valid() bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("enum", func(fl validator.FieldLevel) bool {
		e, ok := fl.Field().Interface().(enumerated)
		return ok && e.Valid()
	})
	return v
}

// NewSubmission validates s against the option tables and the cross-field rules, using now
// as the reference date.
func NewSubmission(s Submission, now time.Time) (*Submission, error) {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return nil, &ValidationError{
				Field:   fe.Field(),
				Message: fmt.Sprintf("failed %q check with value %v", fe.Tag(), fe.Value()),
				Cause:   err,
			}
		}
		return nil, &ValidationError{Message: "invalid submission", Cause: err}
	}
	if err := s.checkRules(now); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s Submission) checkRules(now time.Time) error {
	today := dateOf(now)
	operated := dateOf(s.Operated)
	purchased := dateOf(s.Purchased)

	switch {
	case !s.Location.Valid():
		return &ValidationError{Field: "Location", Message: fmt.Sprintf("unknown county/city/zip combination %+v", s.Location)}
	case s.Operated.IsZero() || s.Purchased.IsZero():
		return &ValidationError{Field: "Operated", Message: "first operated and purchase dates are required"}
	case s.YearModel > now.Year():
		return &ValidationError{Field: "YearModel", Message: fmt.Sprintf("model year %d is in the future", s.YearModel)}
	case operated.After(today):
		return &ValidationError{Field: "Operated", Message: "first operated date is in the future"}
	case operated.Before(today.AddDate(0, 0, -OperatedWindowDays)):
		return &ValidationError{Field: "Operated", Message: fmt.Sprintf("first operated date is more than %d days ago", OperatedWindowDays)}
	case purchased.Before(operated):
		return &ValidationError{Field: "Purchased", Message: "purchase date precedes first operated date"}
	case purchased.After(today):
		return &ValidationError{Field: "Purchased", Message: "purchase date is in the future"}
	}

	if (s.MotivePower == MotiveElectric) != (s.ElectricType != "") {
		return &ValidationError{Field: "ElectricType", Message: "electric type is required for electric vehicles and forbidden otherwise"}
	}
	if (s.VehicleType == VehicleTrailer) != (s.TrailerType != "") {
		return &ValidationError{Field: "TrailerType", Message: "trailer type is required for trailers and forbidden otherwise"}
	}

	if s.WeightType == WeightUnladen {
		if s.UnladenRange == "" || s.GrossRange != "" {
			return &ValidationError{Field: "UnladenRange", Message: "unladen weight needs exactly an unladen range"}
		}
	} else if s.GrossRange == "" || s.UnladenRange != "" {
		return &ValidationError{Field: "GrossRange", Message: "gross weight needs exactly a gross range"}
	}
	return nil
}

// Fields renders the submission as form fields. Inapplicable fields are omitted, never sent empty.
func (s *Submission) Fields() Payload {
	p := Payload{}
	set := func(name, value string) {
		if value != "" {
			p[name] = value
		}
	}

	set("typeLicense", string(s.VehicleType))
	set("yearModel", strconv.Itoa(s.YearModel))
	set("motivePower", string(s.MotivePower))
	set("secondaryMotivePower", string(s.SecondaryMotivePower))
	set("numberOfAxles", string(s.Axles))
	set("operatedMonth", fmt.Sprintf("%02d", int(s.Operated.Month())))
	set("operatedDay", fmt.Sprintf("%02d", s.Operated.Day()))
	set("operatedYear", strconv.Itoa(s.Operated.Year()))
	set("purchaseMonth", fmt.Sprintf("%02d", int(s.Purchased.Month())))
	set("purchaseDay", fmt.Sprintf("%02d", s.Purchased.Day()))
	set("purchaseYear", strconv.Itoa(s.Purchased.Year()))
	set("acquiredFrom", string(s.AcquiredFrom))
	set("purchasePrice", strconv.Itoa(s.PurchasePrice))
	set("useTaxCredit", strconv.Itoa(s.UseTaxCredit))
	set("countyCode", s.Location.CountyCode())
	set("countyNameLabel", s.Location.County)
	set("cityNameLabel", s.Location.CityLabel)
	set("cityName", s.Location.CityName)
	set("zipCode", s.Location.ZipCode)
	set("electricType", string(s.ElectricType))
	set("weightType", string(s.WeightType))
	if s.Axles == AxlesTwo {
		set("unladenRangeTwoAxles", string(s.UnladenRange))
	} else {
		set("unladenRangeMoreThanTwoAxles", string(s.UnladenRange))
	}
	set("grossRange", string(s.GrossRange))
	set("trailerType", string(s.TrailerType))
	return p
}

// Merge overlays p on the hidden fields and adds the token under tokenField. Payload values
// win on name collisions. Neither input is modified.
func Merge(hidden map[string]string, p Payload, tokenField, token string) map[string]string {
	merged := make(map[string]string, len(hidden)+len(p)+1)
	maps.Copy(merged, hidden)
	maps.Copy(merged, p)
	merged[tokenField] = token
	return merged
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

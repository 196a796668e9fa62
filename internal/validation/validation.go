package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"transit-pass-api/internal/models"
)

var (
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9 ()\-]{6,32}$`)
	colorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

	validate = newValidator()
)

// MaxFare bounds a single trip fare, in minor units.
const MaxFare = int64(1_000_000)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fromValidator turns the first struct-tag failure into a ValidationError.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	msg := fe.Tag()
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "email":
		msg = "must be a valid email address"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

func ValidateClientInput(in models.ClientInput) error {
	if err := validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	if err := validatePhone(in.Phone); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be one of active, inactive, suspended"}
	}
	return validateBirthDate(in.BirthDate)
}

// ValidateClient checks a complete client record, e.g. after a patch has been merged.
func ValidateClient(c models.Client) error {
	in := models.ClientInput{
		Surname:   c.Surname,
		GivenName: c.GivenName,
		Phone:     c.Phone,
		Email:     c.Email,
		BirthDate: c.BirthDate,
		Address:   c.Address,
		City:      c.City,
		Status:    c.Status,
		QRCodeID:  c.QRCodeID,
	}
	if err := ValidateClientInput(in); err != nil {
		return err
	}
	if !c.Status.Valid() {
		return &ValidationError{Field: "status", Message: "is required"}
	}
	if c.LastUpdated.Before(c.RegisteredAt) {
		return &ValidationError{Field: "last_updated", Message: "cannot precede registered_at"}
	}
	return nil
}

func ValidatePlan(plan models.SubscriptionPlan) error {
	if SanitizeString(plan.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}

	if plan.DurationDays <= 0 {
		return &ValidationError{Field: "duration_days", Message: "must be positive"}
	}

	if plan.DurationDays > 366 {
		return &ValidationError{Field: "duration_days", Message: "cannot exceed 366 days"}
	}

	if plan.Price <= 0 {
		return &ValidationError{Field: "price", Message: "must be positive"}
	}

	if plan.TripCap != nil && *plan.TripCap <= 0 {
		return &ValidationError{Field: "trip_cap", Message: "must be a positive integer when set"}
	}

	seen := make(map[string]bool)
	for i, line := range plan.EligibleLines {
		if SanitizeString(line) == "" {
			return &ValidationError{Field: fmt.Sprintf("eligible_lines[%d]", i), Message: "is empty"}
		}
		if seen[line] {
			return &ValidationError{Field: "eligible_lines", Message: fmt.Sprintf("duplicate line: %s", line)}
		}
		seen[line] = true
	}

	if plan.Color != "" && !colorRegex.MatchString(plan.Color) {
		return &ValidationError{Field: "color", Message: "must be a #RRGGBB hex color"}
	}

	return nil
}

func ValidateSubscriptionInput(in models.SubscriptionInput) error {
	if err := ValidateUUID(in.ClientID, "client_id"); err != nil {
		return err
	}
	return ValidateUUID(in.PlanID, "plan_id")
}

func ValidatePayment(in models.PaymentInput) error {
	if in.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}

	if !in.Method.Valid() {
		return &ValidationError{Field: "method", Message: "must be one of cash, card, mobile_money, bank_transfer"}
	}

	if in.Status != "" && !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: "must be one of pending, validated, failed, refunded"}
	}

	if in.Method == models.PaymentMobileMoney && SanitizeString(in.Operator) == "" {
		return &ValidationError{Field: "operator", Message: "is required for mobile money payments"}
	}

	return nil
}

func ValidateTrip(in models.TripInput) error {
	if SanitizeString(in.LineID) == "" {
		return &ValidationError{Field: "line_id", Message: "is required"}
	}

	if in.Fare < 0 {
		return &ValidationError{Field: "fare", Message: "must be non-negative"}
	}

	if in.Fare > MaxFare {
		return &ValidationError{Field: "fare", Message: "exceeds maximum allowed amount"}
	}

	if in.ScanMethod != "" && !in.ScanMethod.Valid() {
		return &ValidationError{Field: "scan_method", Message: "must be one of qr_code, manual, nfc"}
	}

	return nil
}

func ValidateVerifyRequest(req models.VerifyRequest) error {
	if SanitizeString(req.Code) == "" {
		return &ValidationError{Field: "code", Message: "is required"}
	}
	if len(req.Code) > 512 {
		return &ValidationError{Field: "code", Message: "is too long"}
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

func ValidateUUID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	id = SanitizeString(id)

	if !uuidRegex.MatchString(strings.ToLower(id)) {
		return &ValidationError{
			Field:   fieldName,
			Message: "must be a valid UUID v4",
		}
	}

	return nil
}

func validatePhone(phone string) error {
	if !phoneRegex.MatchString(SanitizeString(phone)) {
		return &ValidationError{Field: "phone", Message: "must contain digits, spaces, dashes or parentheses only"}
	}
	return nil
}

func validateBirthDate(birth *time.Time) error {
	if birth == nil {
		return nil
	}
	if birth.After(time.Now()) {
		return &ValidationError{Field: "birth_date", Message: "cannot be in the future"}
	}
	if birth.Before(time.Now().AddDate(-130, 0, 0)) {
		return &ValidationError{Field: "birth_date", Message: "is not plausible"}
	}
	return nil
}

func ValidateTimeString(timeStr string) (time.Time, error) {
	if timeStr == "" {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "is required",
		}
	}

	t, err := time.Parse(time.RFC3339, timeStr)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Message: "must be a valid RFC3339 timestamp",
		}
	}

	return t, nil
}

package jazzcash

import (
	"errors"
	"fmt"
	"regexp"

	"jazzcash-gateway/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Form field names used on the checkout page.
const (
	FieldMobileNumber = "jazzcash_mobile_number"
	FieldCNIC         = "jazzcash_cnic"
)

var (
	mobilePattern = regexp.MustCompile(`^03[0-9]{9}$`)
	cnicPattern   = regexp.MustCompile(`^[0-9]{13}$`)

	validate = newValidator()
)

type checkoutFields struct {
	MobileNumber string `validate:"required,pk_mobile"`
	CNIC         string `validate:"omitempty,cnic"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	for tag, re := range map[string]*regexp.Regexp{
		"pk_mobile": mobilePattern,
		"cnic":      cnicPattern,
	} {
		if err := v.RegisterValidation(tag, matches(re)); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// ValidateCheckoutFields checks the wallet number and the optional CNIC.
// An empty CNIC means "not provided".
func ValidateCheckoutFields(mobileNumber, cnic string) error {
	err := validate.Struct(checkoutFields{MobileNumber: mobileNumber, CNIC: cnic})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	switch {
	case fe.Field() == "MobileNumber" && fe.Tag() == "required":
		return &domain.ValidationError{Field: FieldMobileNumber, Message: "Mobile number is required for JazzCash payment."}
	case fe.Field() == "MobileNumber":
		return &domain.ValidationError{Field: FieldMobileNumber, Message: "Please enter a valid Pakistani mobile number starting with 03."}
	default:
		return &domain.ValidationError{Field: FieldCNIC, Message: "Please enter a valid 13-digit CNIC number without dashes."}
	}
}

package handler

import (
	"regexp"

	"outreach/pkg/goutil"
	"outreach/pkg/validator"
)

var placeholderKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func EmailValidator(optional bool) validator.Validator {
	return &validator.String{
		Optional:   optional,
		MaxLen:     254,
		Validators: []validator.StringFunc{validator.IsEmail},
	}
}

func CampaignValidator() validator.Validator {
	return &validator.String{
		Optional: true,
		MaxLen:   64,
		Regex:    regexp.MustCompile(`^[0-9a-zA-Z_\-]+$`),
	}
}

func TemplateDataValidator() validator.Validator {
	return &validator.StringMap{
		Optional: true,
		MaxLen:   50,
		KeyRegex: placeholderKeyRegex,
	}
}

func TagsValidator() validator.Validator {
	return &validator.Slice{
		Optional: true,
		MaxLen:   10,
		Validator: &validator.String{
			MinLen: 1,
			MaxLen: 32,
		},
	}
}

func oneOf(values []string) validator.StringFunc {
	return func(s string) error {
		if !goutil.ContainsStr(values, s) {
			return validator.ErrInvalidFormat
		}
		return nil
	}
}

func PageValidator() validator.Validator {
	return &validator.UInt32{
		Optional: true,
		Min:      1,
	}
}

func LimitValidator() validator.Validator {
	return &validator.UInt32{
		Optional: true,
		Min:      1,
		Max:      100,
	}
}

package options

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ValidateOption checks opt against the definition of the same name in
// options: required, format, value list and type.
func ValidateOption(opt Option, options []*Option) error {
	for _, option := range options {
		if option.Name != opt.Name {
			continue
		}

		if option.Value == "" {
			if opt.Required {
				return errors.New(option.Name + " is required")
			}
			return nil
		}

		if opt.ValueFormat != nil && !opt.ValueFormat.MatchString(option.Value) {
			if opt.Sensitive {
				return errors.New(option.Name + " is an invalid format")
			}
			return fmt.Errorf("%s is an invalid format: %q", option.Name, option.Value)
		}

		if opt.ValueList != nil {
			valid := false
			for _, value := range opt.ValueList {
				if strings.EqualFold(value, option.Value) {
					valid = true
					break
				}
			}
			if !valid {
				return errors.New(option.Name + " is not a valid option. Valid options are: " + strings.Join(opt.ValueList, ", "))
			}
		}

		switch opt.Type {
		case Bool:
			if _, err := strconv.ParseBool(option.Value); err != nil {
				return fmt.Errorf("%s must be a boolean: %w", option.Name, err)
			}
		case Int:
			if _, err := strconv.Atoi(option.Value); err != nil {
				return fmt.Errorf("%s must be an integer: %w", option.Name, err)
			}
		}
		return nil
	}
	return nil
}

func ValidateOptions(opts []*Option) error {
	for _, opt := range opts {
		if err := ValidateOption(*opt, opts); err != nil {
			return err
		}
	}
	return nil
}

// ValidateImageIDs checks every argument is an AMI id.
func ValidateImageIDs(ids []string) error {
	if len(ids) == 0 {
		return errors.New("at least one image id is required")
	}
	for _, id := range ids {
		if !AwsImageIdFormat.MatchString(id) {
			return fmt.Errorf("%q is not an image id", id)
		}
	}
	return nil
}

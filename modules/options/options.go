package options

import "regexp"

type OptionType string

const (
	String OptionType = "string"
	Bool   OptionType = "bool"
	Int    OptionType = "int"
)

type Option struct {
	Name        string
	Short       string
	Description string
	Required    bool
	Type        OptionType
	// Value holds the default until the command line is parsed.
	Value       string
	ValueFormat *regexp.Regexp
	ValueList   []string
	Sensitive   bool
}

func GetOptionByName(name string, options []*Option) *Option {
	for _, option := range options {
		if option.Name == name {
			return option
		}
	}
	return nil
}

func WithRequired(option Option, required bool) *Option {
	option.Required = required
	return &option
}

func WithDefaultValue(option Option, value string) *Option {
	option.Value = value
	return &option
}

func CreateDeepCopyOfOptions(original []*Option) []*Option {
	copied := make([]*Option, len(original))
	for i, option := range original {
		o := *option
		if option.ValueList != nil {
			o.ValueList = append([]string(nil), option.ValueList...)
		}
		copied[i] = &o
	}
	return copied
}

package outputproviders

import (
	"fmt"

	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
)

// New returns the provider for format. File providers write below outputPath.
func New(format, outputPath string) (types.OutputProvider, error) {
	switch format {
	case FormatConsole, "":
		return NewConsoleProvider(), nil
	case FormatJSON:
		return NewJsonFileProvider(outputPath), nil
	case FormatYAML:
		return NewYamlFileProvider(outputPath), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

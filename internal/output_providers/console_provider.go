package outputproviders

import (
	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

type ConsoleProvider struct{}

func NewConsoleProvider() types.OutputProvider {
	return &ConsoleProvider{}
}

// Write prints a one line summary for reports and the indented JSON of
// anything else.
func (cp *ConsoleProvider) Write(result types.Result) error {
	report, ok := result.Data.(types.Report)
	if !ok {
		message.Info("%s", result.String())
		return nil
	}
	if report.Succeeded() {
		message.Success("%s", report.Summary())
	} else {
		message.Error("%s", report.Summary())
	}
	return nil
}

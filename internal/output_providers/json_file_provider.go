package outputproviders

import (
	"encoding/json"

	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

type JsonFileProvider struct {
	OutputPath string
}

func NewJsonFileProvider(outputPath string) types.OutputProvider {
	return &JsonFileProvider{OutputPath: outputPath}
}

func (fp *JsonFileProvider) Write(result types.Result) error {
	filename := result.Filename
	if filename == "" {
		filename = fp.DefaultFileName(result.Module)
	}
	fullpath := GetFullPath(filename, fp.OutputPath)

	file, err := create(fullpath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result.Data); err != nil {
		return err
	}

	message.Success("Output written to %s", fullpath)
	return nil
}

func (fp *JsonFileProvider) DefaultFileName(prefix string) string {
	return DefaultFileName(prefix, "json")
}

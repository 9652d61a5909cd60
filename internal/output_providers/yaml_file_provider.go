package outputproviders

import (
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/pkg/types"
)

type YamlFileProvider struct {
	OutputPath string
}

func NewYamlFileProvider(outputPath string) types.OutputProvider {
	return &YamlFileProvider{OutputPath: outputPath}
}

func (fp *YamlFileProvider) Write(result types.Result) error {
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

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	if err := encoder.Encode(result.Data); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	message.Success("Output written to %s", fullpath)
	return nil
}

func (fp *YamlFileProvider) DefaultFileName(prefix string) string {
	return DefaultFileName(prefix, "yaml")
}

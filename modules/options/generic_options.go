package options

var OutputOpt = Option{
	Name:        "output",
	Short:       "o",
	Description: "output directory",
	Required:    false,
	Type:        String,
	Value:       "output",
}

var OutputFormatOpt = Option{
	Name:        "output-format",
	Short:       "f",
	Description: "report format",
	Required:    false,
	Type:        String,
	Value:       "console",
	ValueList:   []string{"console", "json", "yaml"},
}

var ScriptsDirOpt = Option{
	Name:        "scripts-dir",
	Description: "directory with mount_and_dig.sh and install_ntfs_3g.sh overriding the built in scripts",
	Required:    false,
	Type:        String,
	Value:       "",
}

var LogLevelOpt = Option{
	Name:        "log-level",
	Description: "log level",
	Required:    false,
	Type:        String,
	Value:       "info",
	ValueList:   []string{"debug", "info", "warn", "error"},
}

var QuietOpt = Option{
	Name:        "quiet",
	Short:       "q",
	Description: "only print warnings and errors",
	Required:    false,
	Type:        Bool,
	Value:       "false",
}

var NoColorOpt = Option{
	Name:        "no-color",
	Description: "disable colored output",
	Required:    false,
	Type:        Bool,
	Value:       "false",
}

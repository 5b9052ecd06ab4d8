package datasync

import (
	"fmt"
	"strings"
)

// Format is an export file format. It implements pflag.Value so it can be
// bound directly to a command flag.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// AllFormats lists the accepted export formats.
var AllFormats = []Format{FormatYAML, FormatJSON, FormatMarkdown, FormatPDF}

func (f *Format) String() string {
	return string(*f)
}

func (f *Format) Set(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	switch Format(value) {
	case FormatYAML, FormatJSON, FormatMarkdown, FormatPDF:
		*f = Format(value)
		return nil
	case "yml":
		*f = FormatYAML
		return nil
	case "md":
		*f = FormatMarkdown
		return nil
	}
	return fmt.Errorf("must be one of %v", AllFormats)
}

func (f *Format) Type() string {
	return "format"
}

// Extension is the file extension written for the format.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yml"
	case FormatMarkdown:
		return ".md"
	default:
		return "." + string(f)
	}
}

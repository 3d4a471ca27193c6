package schema

// CommandName is the "command" tag of an outbound worker request.
type CommandName string

const (
	CommandConvert       CommandName = "convert"
	CommandSave          CommandName = "save"
	CommandGetHistory    CommandName = "get_history"
	CommandDeleteHistory CommandName = "delete_history"
	CommandPing          CommandName = "ping"
)

// Command is an outbound request to the worker.
type Command interface {
	CommandName() CommandName
}

// ConvertOptions mirrors the conversion settings understood by the worker.
type ConvertOptions struct {
	Width            int     `json:"width" mapstructure:"width" yaml:"width"`
	Charset          string  `json:"charset" mapstructure:"charset" yaml:"charset"`
	RemoveBackground bool    `json:"removeBackground" mapstructure:"remove_background" yaml:"remove_background"`
	Brightness       int     `json:"brightness" mapstructure:"brightness" yaml:"brightness"`
	Contrast         int     `json:"contrast" mapstructure:"contrast" yaml:"contrast"`
	Invert           bool    `json:"invert" mapstructure:"invert" yaml:"invert"`
	Ratio            *string `json:"ratio" mapstructure:"ratio" yaml:"ratio"`
	KeepOriginal     bool    `json:"keepOriginal" mapstructure:"keep_original" yaml:"keep_original"`
}

// DefaultConvertOptions returns the settings the main window starts with.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		Width:    120,
		Charset:  "detailed",
		Contrast: 100,
	}
}

// SaveFormat selects how the worker writes saved art.
type SaveFormat string

const (
	SaveText SaveFormat = "txt"
	SaveHTML SaveFormat = "html"
)

// ConvertCommand asks the worker to convert an image or GIF.
type ConvertCommand struct {
	Path    string
	Options ConvertOptions
}

// SaveCommand asks the worker to persist text-art to a file.
type SaveCommand struct {
	ASCII    string
	Filename string
	Format   SaveFormat
}

// GetHistoryCommand asks for the persisted history list.
type GetHistoryCommand struct{}

// DeleteHistoryCommand removes the history entry at a positional index.
type DeleteHistoryCommand struct {
	Index int
}

// PingCommand is a liveness probe.
type PingCommand struct{}

func (ConvertCommand) CommandName() CommandName       { return CommandConvert }
func (SaveCommand) CommandName() CommandName          { return CommandSave }
func (GetHistoryCommand) CommandName() CommandName    { return CommandGetHistory }
func (DeleteHistoryCommand) CommandName() CommandName { return CommandDeleteHistory }
func (PingCommand) CommandName() CommandName          { return CommandPing }

package config

// Step kinds understood by the installer package.
const (
	KindScript      = "script"      // download an installer script and run it
	KindBrew        = "brew"        // one step per formula or cask
	KindArchive     = "archive"     // download and unpack an archive, e.g. fonts
	KindDirectories = "directories" // create directories if absent
	KindProfile     = "profile"     // idempotent line append to a shell profile
	KindPreferences = "preferences" // typed OS settings
	KindIdentity    = "identity"    // version-control identity, prompted when missing
	KindSSHKey      = "ssh-key"     // generate a key pair and show the public key
	KindCommand     = "command"     // generic check/run command pair
)

// Kinds lists every valid step kind.
var Kinds = []string{
	KindScript, KindBrew, KindArchive, KindDirectories, KindProfile,
	KindPreferences, KindIdentity, KindSSHKey, KindCommand,
}

// Preference stores.
const (
	StoreDefaults  = "defaults"
	StoreDirectory = "directory"
)

// Config is the whole bootstrap configuration.
type Config struct {
	// Path is searched for commands before $PATH and prepended to PATH for
	// every child, so tools installed earlier in the run are found later.
	Path       []string  `yaml:"path"`
	ReportFile string    `yaml:"report_file"`
	KeepAwake  KeepAwake `yaml:"keep_awake"`
	Steps      []Step    `yaml:"steps"`
}

// KeepAwake configures the sleep guard held for the duration of a run.
type KeepAwake struct {
	Enabled bool `yaml:"enabled"`
	// Scope is one of all, battery, charger or system. Required when enabled.
	Scope    string   `yaml:"scope"`
	Settings []string `yaml:"settings"`
}

// Step is one entry of the steps list. Which fields apply depends on Kind.
type Step struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	OnFailure string   `yaml:"on_failure"`
	After     []string `yaml:"after"`

	// script, archive
	URL         string   `yaml:"url"`
	Interpreter string   `yaml:"interpreter"`
	Args        []string `yaml:"args"`
	Env         []string `yaml:"env"`
	Creates     string   `yaml:"creates"`
	Command     string   `yaml:"command"`

	// brew
	Formulae []string `yaml:"formulae"`
	Casks    []string `yaml:"casks"`

	// directories
	Paths []string `yaml:"paths"`

	// profile, identity, ssh-key
	File    string   `yaml:"file"`
	Lines   []string `yaml:"lines"`
	Comment string   `yaml:"comment"`

	// preferences
	Preferences []Preference `yaml:"preferences"`

	// archive
	Dest    string `yaml:"dest"`
	Include string `yaml:"include"`

	// command
	Check       []string `yaml:"check"`
	Run         []string `yaml:"run"`
	Sudo        bool     `yaml:"sudo"`
	Interactive bool     `yaml:"interactive"`
}

// Preference is a single typed setting.
type Preference struct {
	// Store is "defaults" (the default) or "directory" for account attributes.
	Store  string `yaml:"store"`
	Domain string `yaml:"domain"`
	Key    string `yaml:"key"`
	Type   string `yaml:"type"`
	Value  string `yaml:"value"`
	// Restart names a process to killall after the value is written.
	Restart string `yaml:"restart"`
}

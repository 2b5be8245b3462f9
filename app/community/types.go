package community

// Configuration types

// Config describes one community: where its observations come from, which
// publishing account owns its content, and the decision data (threshold table,
// banned terms) the pipeline evaluates against.
type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	Source   string         `yaml:"source"` // Upstream community name, e.g. subreddit
	Account  ConfigAccount  `yaml:"account"`
	Settings ConfigSettings `yaml:"settings"`
	Decision ConfigDecision `yaml:"decision"`
	Caption  ConfigCaption  `yaml:"caption"`
}

type ConfigAccount struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	// SecondaryChannel receives content that passed the engagement threshold
	// but exceeded the account's daily budget. Empty means drop.
	SecondaryChannel string `yaml:"secondary_channel"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	FetchLimit      int  `yaml:"fetch_limit"`      // max observations per run, 0 = upstream default
	Timeout         int  `yaml:"timeout"`          // seconds
}

type ConfigDecision struct {
	// Thresholds holds one score-per-second ratio per observation position.
	// Content observed more times than there are thresholds is out of the
	// tracked window.
	Thresholds  []float64 `yaml:"thresholds"`
	BannedTerms []string  `yaml:"banned_terms"`
}

type ConfigCaption struct {
	Hashtags string `yaml:"hashtags"`
}

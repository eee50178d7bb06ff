package config

type Config struct {
	// cron spec for the scheduled dedup run, e.g. "0 30 6 * * *"
	UpdateFrequency string
	SQL             SQLConfig
	Dedup           DedupConfig
}

type SQLConfig struct {
	FinanceDatabase string
	BatchSize       int
}

///////////////////////////////////////////////////////////////////////////////////////
// Dedup rule configuration
///////////////////////////////////////////////////////////////////////////////////////

// DedupConfig is the declarative rule configuration for the dedup pipeline.
// It is pure data, loaded once per run and passed into the pipeline explicitly
// so rules never read ambient state and tests can fabricate their own.
type DedupConfig struct {
	// Lower number = higher priority = preferred in dedup groups.
	SourcePriority map[string]int `json:"sourcePriority"`

	// Accounts where one source is wholesale unreliable and every one of its
	// transactions is suppressed, matched or not.
	Superseded []SupersededAccount `json:"superseded"`

	// Source pairs eligible for positional cross-source matching, per account.
	CrossSourcePairs []CrossSourcePair `json:"crossSourcePairs"`

	// Alternate account_ref spellings that describe the same account.
	AccountAliases []AccountAlias `json:"accountAliases"`
}

type SupersededAccount struct {
	Institution      string `json:"institution"`
	AccountRef       string `json:"accountRef"`
	SupersededSource string `json:"supersededSource"`
}

type CrossSourcePair struct {
	Institution string      `json:"institution"`
	AccountRef  string      `json:"accountRef"`
	Pairs       [][2]string `json:"pairs"`
}

type AccountAlias struct {
	Institution  string `json:"institution"`
	AccountRef   string `json:"accountRef"`
	CanonicalRef string `json:"canonicalRef"`
}

// unknownSourcePriority ranks sources missing from the priority map last.
const unknownSourcePriority = 99

func (c *DedupConfig) Priority(source string) int {
	if p, ok := c.SourcePriority[source]; ok {
		return p
	}

	return unknownSourcePriority
}

// ResolveRef returns the canonical account_ref for an (institution, account_ref)
// pair, following the alias map. Refs without an alias resolve to themselves.
func (c *DedupConfig) ResolveRef(institution, accountRef string) string {
	for _, a := range c.AccountAliases {
		if a.Institution == institution && a.AccountRef == accountRef {
			return a.CanonicalRef
		}
	}

	return accountRef
}

// RefGroup returns every account_ref equivalent to the given one: the canonical
// ref plus all refs aliased to it.
func (c *DedupConfig) RefGroup(institution, accountRef string) []string {
	canonical := c.ResolveRef(institution, accountRef)
	refs := []string{canonical}

	for _, a := range c.AccountAliases {
		if a.Institution == institution && a.CanonicalRef == canonical {
			refs = append(refs, a.AccountRef)
		}
	}

	return refs
}

///////////////////////////////////////////////////////////////////////////////////////
// Secrets
///////////////////////////////////////////////////////////////////////////////////////

type Secrets struct {
	Influx InfluxSecrets
	SQL    SqlSecrets

	// Alternative to the SQL struct, designed for heroku-style env configuration.
	DatabaseURL string `env:"DATABASE_URL"`
}

type SqlSecrets struct {
	SqlHost     string `env:"SQL_HOST"`
	SqlUsername string `env:"SQL_USERNAME"`
	SqlPassword string `env:"SQL_PASSWORD"`
}

type InfluxSecrets struct {
	InfluxEndpoint string `json:"influxEndpoint" env:"INFLUX_ENDPOINT"`
	InfluxUsername string `json:"influxUsername" env:"INFLUX_USERNAME"`
	InfluxPassword string `json:"influxPassword" env:"INFLUX_PASSWORD"`
}

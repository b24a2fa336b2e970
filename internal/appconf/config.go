// Package appconf holds runtime configuration for the API server.
package appconf

// Environment selects runtime behavior (logging verbosity, defaults).
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment converts the -env flag value. Anything
// unrecognized falls back to Development.
func EnvFlagToEnvironment(envFlag string) Environment {
	switch envFlag {
	case "test":
		return Test
	case "production":
		return Production
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// RealtimeFeed is one GTFS-RT trip-updates source. ID distinguishes
// feeds so that overlapping edits from different producers compose
// instead of superseding each other.
type RealtimeFeed struct {
	ID              string
	TripUpdatesURL  string
	AuthHeaderName  string
	AuthHeaderValue string
}

// Config is the resolved application configuration.
type Config struct {
	Env          Environment
	Port         int
	ApiKeys      []string
	RateLimit    int
	Verbose      bool
	GtfsURL      string
	SnapshotPath string
	Feeds        []RealtimeFeed
	PollSeconds  int
}

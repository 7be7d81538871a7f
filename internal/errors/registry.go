package errors

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Config (E100-E109)
	"E100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create atri.json or pass --config",
	},
	"E101": {
		Category:   CategoryConfig,
		Message:    "Config file is not valid JSON",
		Suggestion: "Check atri.json for syntax errors",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
	},

	// App definition (E110-E119)
	"E110": {
		Category:   CategoryApp,
		Message:    "App definition not found",
		Suggestion: "Check app.source in atri.json",
	},
	"E111": {
		Category:   CategoryApp,
		Message:    "App definition could not be parsed",
		Detail:     "App definitions are YAML or JSON documents with a top-level routes map.",
		Suggestion: "Check the file for syntax errors",
	},
	"E112": {
		Category:   CategoryApp,
		Message:    "App definition could not be fetched",
		Detail:     "s3:// sources are read with credentials from AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or anonymously without them.",
		Suggestion: "Check AWS_REGION and the credentials available to the process",
	},
	"E113": {
		Category:   CategoryApp,
		Message:    "App definition holds a value that cannot be sent to clients",
		Suggestion: "Replace NaN, infinities and binary values with plain numbers or strings",
	},

	// Routes (E120-E129)
	"E120": {
		Category:   CategoryRoutes,
		Message:    "Invalid route path",
		Suggestion: "Route paths are absolute, e.g. /counter",
	},
	"E121": {
		Category:   CategoryRoutes,
		Message:    "Duplicate route",
		Suggestion: "Each canonical path may be registered once",
	},
	"E122": {
		Category:   CategoryRoutes,
		Message:    "App definition names an unknown route",
		Detail:     "Every route in the app definition needs generated hooks in app/routes.",
		Suggestion: "Regenerate the app or remove the route from the definition",
	},
	"E123": {
		Category:   CategoryRoutes,
		Message:    "No routes registered",
		Suggestion: "Check that app/routes exports at least one route",
	},

	// Server (E130-E139)
	"E130": {
		Category: CategoryServer,
		Message:  "Server could not be created",
	},
	"E131": {
		Category:   CategoryServer,
		Message:    "Server failed",
		Suggestion: "Check that the address is free, e.g. with lsof -i",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

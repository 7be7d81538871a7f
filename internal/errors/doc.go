// Package errors provides coded, actionable errors for the atri CLI.
//
// Fatal startup problems (a missing config file, an app definition that does
// not parse, a route that cannot be registered) are reported with a stable
// code, a one-line message, an explanation and a hint:
//
//	err := errors.New("E110").
//	    WithDetail("open app.yaml: no such file or directory").
//	    WithSuggestion("Set app.source in atri.json")
//
//	errors.PrintError(err)
//	// ERROR E110: App definition not found
//	//
//	//   open app.yaml: no such file or directory
//	//
//	//   Hint: Set app.source in atri.json
//
// Codes are grouped by category:
//   - E100-E109 config: the runtime config file
//   - E110-E119 app: the app definition
//   - E120-E129 routes: route registration
//   - E130-E139 server: listening and serving
package errors

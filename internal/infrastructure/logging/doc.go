// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Components receive a *zap.Logger and derive named or app-scoped children:
//
//	logger := logging.NewDefault()
//	host := logger.Named("sandbox")
//	app := logging.ForApp(host, "notes")
//	app.Warn("append redirected", zap.String("tag", "STYLE"))
package logging

// Package log provides the application logger: log/slog handlers wrapped by
// SecureHandler, which masks credentials before they reach the output.
//
// Masked values:
//   - attributes named like a secret (password, token, cookie, authorization)
//   - the password of connection strings and URLs, in any string or error
//   - secret query parameters of URL subjects
//   - bearer, basic and JWT tokens found in values
//
// # Usage
//
//	logger, closer, err := log.NewLogger(log.Options{Verbose: true, File: path})
//	if err != nil {
//		return err
//	}
//	defer closer.Close()
//
//	logger.Info("database opened", "dsn", "postgres://u:secret@db/funceble")
//	// dsn=postgres://u:***REDACTED***@db/funceble
package log

// Package logging configures structured logging for switchboard.
//
// It wraps log/slog with three additions:
//   - level and format selection from configuration ("json" or "text")
//   - a redacting handler that masks credentials in messages and attributes
//   - request-scoped fields (request id, app, provider) carried in the context
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:             "info",
//	    Format:            "json",
//	    RedactCredentials: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Shutdown()
//	slog.SetDefault(logger.Slog())
//
// Components then derive their own loggers with
// slog.Default().With("component", "..."), and every record they emit goes
// through the redacting handler.
//
// # Redaction
//
// Upstream API keys are the only secrets switchboard handles. With
// RedactCredentials enabled, values under credential-like keys
// (api_key, authorization, x-api-key, x-goog-api-key, ...) are reduced to a
// short prefix, and key-shaped substrings in any string value are masked:
//
//   - sk-ant-api03-abc...  → sk-***
//   - Bearer eyJhbGciOi... → Bearer ***
//   - AIzaSyD...           → AIza***
package logging

// Package logging provides structured logging for wsdtool.
//
// This package wraps a global zap logger with convenience functions. Logging
// is silent unless a level is configured, either through the CLI flags or the
// WSD_LOG_LEVEL environment variable, so command output stays clean.
//
// # Log Levels
//
//   - Debug: wire dumps of every SOAP message, dropped datagrams, retries
//   - Info: discovered devices, subscriptions, listener lifecycle
//   - Warn: evictions, unreachable targets, unmatched events
//   - Error: failures that abort an operation
//
// # Wire Dumps
//
// With debug enabled every message sent or received is dumped pretty-printed:
//
//	logging.LogSOAPMessage("send", "239.255.255.250:3702", req.Body)
//
// # Configuration
//
//	if err := logging.Initialize(logging.LevelForVerbosity(verbose, debug)); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// All logging functions are safe for concurrent use.
package logging

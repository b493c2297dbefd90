// Package logger is structured logging on zerolog.
//
// Producers, consumers and event logs take a *Logger through their
// options. Without one they tag the global logger with their component
// name, so every line can be traced back to where it came from:
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
//	log := logger.WithComponent("producer")
//	log.Debug("frame written", logger.Fields(logger.FieldEventID, id))
package logger

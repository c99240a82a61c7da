// Package logdict builds logging pipelines from declarative documents.
//
// A document (YAML, JSON or TOML) declares named formatters, filters and
// handlers plus a tree of dotted logger names, in the spirit of Python's
// logging.config.dictConfig. The package turns one document into a live
// graph and hands out standard *slog.Logger handles backed by it:
//   - Formatters render records through compiled templates, or come from a
//     registered factory (the "color" formatter ships with the package).
//   - Handlers pair a level gate, filters and a formatter with a sink:
//     console streams, plain files, size-rotated files with numbered
//     backups, lumberjack-managed archives, or factory-built sinks such as
//     the date-prefixed "daily_file".
//   - Loggers inherit levels from their nearest configured ancestor and
//     propagate records to ancestor handlers unless told not to.
//
// There is no ambient global configuration. Callers construct a Manager,
// Apply a document, and pass the resulting handles down explicitly.
// Re-applying a document swaps the graph under the handles atomically, so
// hot reload never duplicates handlers or leaks file descriptors.
package logdict

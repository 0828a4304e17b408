// Package datasource mirrors rows from external HTTP data sources
// into app records on a cron schedule. Mirrored writes fire the same
// webhook triggers as user mutations.
package datasource

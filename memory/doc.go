// Package memory implements long-term conversational memory: completed
// sessions are committed into an index scoped by app and user, and later
// turns recall them by query.
package memory

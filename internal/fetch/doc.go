// Package fetch retrieves raw content from registered sources.
//
// A single Client handles all three source kinds:
//   - sheet: spreadsheet values API, returns a 2-D array of cell values
//   - json:  REST endpoint, returns the decoded payload as-is
//   - xml:   REST endpoint, parsed into an equivalent structural tree
//
// XML normalization is deterministic: repeated parses of identical XML
// produce identical structural results, which the change detector relies on.
package fetch

// Package core provides the domain logic of the equipment location catalog.
//
// It has no knowledge of HTTP or of any particular database. The web layer
// and the store adapters in internal/store build on it.
//
// # Categories and kinds
//
// The catalog has three fixed categories, loaded once from the embedded
// categories.yaml. Each category holds records of exactly one [Kind]:
// network switches, CCTV cameras or embedded devices. A [Record] carries the
// common attributes plus a [Details] value whose concrete type matches the
// record's kind; [Record.Validate] rejects any mismatch.
//
// The field set of each kind lives in a static registry ([FieldsFor],
// [DefinitionFor]). It drives the create form, the import column mapping and
// the spreadsheet template.
//
// # Catalog view
//
// [OpenCatalog] subscribes to a category through a [Store] and keeps the
// current record set. It supports search, manual create with an optional
// position lookup, and delete behind an explicit confirmation.
//
// # Import pipeline
//
// An [ImportSession] walks a spreadsheet through
// upload → mapping → committing → done | partial_failure. Rows are inserted
// one at a time with a small delay; a failing row is logged with its
// spreadsheet line number and the batch continues. [Importer] keeps one
// session per category and bounds concurrent commits with a [CommitGate].
//
// # Error handling
//
// Failures are typed ([StoreError], [ParseError], [RowCommitError],
// [ValidationError]) and wrap sentinel errors. [MapError] turns any of them
// into a [UserMessage] with a support code.
package core

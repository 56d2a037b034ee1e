// Package catalog defines the identifiers, records, task outcomes, selector
// schema and collaborator interfaces shared by the export pipeline: the
// session providers, the prober and field extractor, the worker pool and the
// single-writer aggregator.
package catalog

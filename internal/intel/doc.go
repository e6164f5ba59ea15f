// Package intel provides the business boundary for Lookout's
// classification-and-assessment pipeline. It defines the domain models, the
// Store interface (persistence), the Completer interface (LLM access), the
// response parsers for both stages, the criticality score aggregator, and
// the two batch stage runners (Classifier and Assessor).
package intel

// Package textutil compares product text by token fingerprints.
//
// Text is lowercased, split on non-alphanumeric runs, and tokens shorter than
// three characters are dropped. Fingerprints are term-frequency vectors
// compared with cosine similarity.
package textutil

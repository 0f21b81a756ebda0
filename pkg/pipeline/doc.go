// Package pipeline runs the chunked fetch-resolve-flatten pass over the SWAPI
// people id space.
//
// The id range is split into consecutive fixed-size chunks. For each chunk the
// pipeline:
//   - fetches every person in the chunk concurrently
//   - assembles each fetched person, resolving its references concurrently
//   - drops people whose references could not all be resolved
//   - appends the surviving rows to the store in one call
//
// Chunks run strictly one after another; the next chunk's fetches start only
// after the previous chunk's append has returned. That bounds the number of
// in-flight requests to roughly chunk size times references per person.
//
// Example usage:
//
//	p, err := pipeline.New(httpClient, people.NewAssembler(httpClient), st, pipeline.DefaultConfig())
//	stats, err := p.Run(ctx)
//
// Fetch failures never fail a run. A store error stops the run immediately
// and is returned to the caller.
package pipeline

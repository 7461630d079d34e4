/*
Package chain implements a weighted Markov transition store with
interchangeable backends, along with the pieces needed to build and walk
chains: a sliding-window transition extractor, a lazy sequence generator,
and snapshot export/import.

Three Store implementations are provided: MemoryStore (in-process maps),
RedisStore (a remote key/value backend using an atomic counter-suffix trick
to get weighted sampling from uniform set selection), and SQLStore (durable
SQLite storage with native frequency columns). Callers depend only on the
Store interface.
*/
package chain

package store

// Config configures the local SQLite-backed Store
type Config struct {
	// Path is the sqlite database file; ":memory:" is valid for tests
	Path string
	// VectorDir holds vectors.idx/vectors.map; defaults to the database
	// file's directory when empty
	VectorDir string
	// VectorDim is the embedding dimensionality the vector index expects
	VectorDim int
	// LogSQL mirrors the teacher's PGConfig.LogSQL: always emit query
	// traces at debug level when true
	LogSQL bool
	// SlowQueryMs marks a query as slow for logging; 0 disables the check
	SlowQueryMs int
}

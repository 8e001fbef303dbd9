package processor

// Registry maps a namespace to the Chain its records run through.
// Unknown namespaces fall back to DefaultChain
type Registry struct {
	chains map[string]*Chain
}

// NewRegistry builds a Registry. lookup backs the lifelog Dedup stage;
// pass nil in contexts where cross-batch dedup isn't available (tests,
// standalone use)
func NewRegistry(lookup FingerprintLookup) *Registry {
	lifelogChain := NewChain("limitless",
		Stage{Name: "clean", Item: BasicCleaning},
		Stage{Name: "dedup", Item: Dedup(lookup)},
		Stage{Name: "segment", Item: Segmentation},
		Stage{Name: "enrich", Item: MetadataEnrichment},
	)

	reg := &Registry{chains: map[string]*Chain{
		"limitless": lifelogChain,
	}}
	return reg
}

// DefaultChain is used for any namespace without a registered chain:
// BasicCleaning followed by MetadataEnrichment
func DefaultChain() *Chain {
	return NewChain("default",
		Stage{Name: "clean", Item: BasicCleaning},
		Stage{Name: "enrich", Item: MetadataEnrichment},
	)
}

// ChainFor returns the Chain registered for namespace, or DefaultChain
// when none is registered
func (r *Registry) ChainFor(namespace string) *Chain {
	if c, ok := r.chains[namespace]; ok {
		return c
	}
	return DefaultChain()
}

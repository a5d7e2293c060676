package gallery

import "errors"

// Sentinel errors returned by Add and Seed.
var (
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")
	ErrInvalidEmbedding          = errors.New("embedding has non-finite components")
	ErrInvalidIdentity           = errors.New("identity id is required")
)

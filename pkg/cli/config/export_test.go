package config

// NormalizeBaseURL is exported for testing
var NormalizeBaseURL = normalizeBaseURL

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, url, serviceKey string) *Repository {
	return &Repository{
		backend:    backend,
		url:        url,
		serviceKey: serviceKey,
		timeoutMS:  1000,
	}
}

// NewPolicyForTest creates a Policy config for testing purposes
func NewPolicyForTest(path string) *Policy {
	return &Policy{path: path}
}

package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrInvalidConfig    = goerr.New("invalid configuration")
	ErrPolicyNotFound   = goerr.New("policy file not found")
	ErrPartialSupabase  = goerr.New("set both supabase-url and supabase-service-role-key, or neither")
	ErrMissingSourceURL = goerr.New("kvca base URL is required")
)

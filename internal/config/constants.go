package config

import "time"

// Cache TTLs per collection. Evaluations change most often during a school
// day, register sections almost never.
const (
	CacheTTLEvaluations      = 3 * time.Minute
	CacheTTLSections         = 5 * time.Minute
	CacheTTLProfessors       = 5 * time.Minute
	CacheTTLEnrollments      = 5 * time.Minute
	CacheTTLDashboard        = 5 * time.Minute
	CacheTTLRegisterSections = 10 * time.Minute
	CacheTTLSubjects         = 10 * time.Minute
	CacheTTLYears            = 10 * time.Minute
	CacheTTLEmployees        = 15 * time.Minute
)

// Cache capacity before oldest-entry eviction kicks in
const CacheMaxSize = 100

// Redis timeouts for the session backend
const (
	RedisDialTimeout = 5 * time.Second
	RedisOpTimeout   = 3 * time.Second
)

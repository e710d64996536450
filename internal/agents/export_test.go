package agents

// Test-only exports for the external agents_test package. runner_test.go
// must live outside package agents because it imports internal/risk,
// which itself imports internal/agents.

const MaxCompletionAttempts = maxCompletionAttempts

var (
	NormalizeDecision = normalizeDecision
	TestSnapshot      = testSnapshot
)

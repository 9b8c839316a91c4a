package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

var validLogFormats = map[string]bool{
	"text": true, "json": true,
}

var validPolicies = map[string]bool{
	"": true, "retry": true, "skip": true, "abort": true,
}

var validProviders = map[string]bool{
	"rules": true, "openai": true,
}

// Validate checks the configuration for values that would misbehave at
// runtime. It assumes defaults have already been applied.
func (c *Config) Validate() error {
	var problems []string

	if c.Browser.DebugPort < 1 || c.Browser.DebugPort > 65535 {
		problems = append(problems, fmt.Sprintf("browser.debug_port %d out of range", c.Browser.DebugPort))
	}
	if c.Engine.PollInterval >= c.Engine.NavigateTimeout {
		problems = append(problems, "engine.poll_interval must be shorter than engine.navigate_timeout")
	}
	if c.Engine.RetryBudget < 0 {
		problems = append(problems, "engine.retry_budget must not be negative")
	}
	if !validPolicies[c.Engine.AutoPolicy] {
		problems = append(problems, fmt.Sprintf("engine.auto_policy %q unknown (want retry, skip, or abort)", c.Engine.AutoPolicy))
	}
	if !validProviders[c.Decision.Provider] {
		problems = append(problems, fmt.Sprintf("decision.provider %q unknown (want rules or openai)", c.Decision.Provider))
	}
	if c.Decision.Provider == "openai" && c.Decision.Endpoint == "" {
		problems = append(problems, "decision.endpoint required for provider openai")
	}
	if c.Decision.RequestsPerMin < 0 {
		problems = append(problems, "decision.requests_per_min must not be negative")
	}
	if !validLogLevels[strings.ToLower(c.Logger.Level)] {
		problems = append(problems, fmt.Sprintf("logger.level %q unknown", c.Logger.Level))
	}
	if !validLogFormats[strings.ToLower(c.Logger.Format)] {
		problems = append(problems, fmt.Sprintf("logger.format %q unknown", c.Logger.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

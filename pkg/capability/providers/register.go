// Package providers implements capability.Client for the agent backend
// server ("backend") and for direct Gmail access ("gmail"). Importing the
// package registers both types.
package providers

import "github.com/arnavsurve/agentblocks/pkg/capability"

func init() {
	capability.RegisterProviderFactory("backend", func(s capability.Settings) (capability.Client, error) {
		return NewBackendClient(s)
	})
	capability.RegisterProviderFactory("gmail", func(s capability.Settings) (capability.Client, error) {
		return NewGmailClient(s)
	})
}

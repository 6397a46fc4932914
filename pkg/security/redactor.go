package security

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/core"
)

type Redactor struct {
	Secrets []string
}

// NewRedactor collects the values of inputs marked secret plus any extra
// credentials, e.g. resolved provider API keys.
func NewRedactor(inputs []core.Input, varCtx core.VarContext, extra ...string) *Redactor {
	var secretValues []string
	for _, input := range inputs {
		if !input.Secret {
			continue
		}
		if val, ok := varCtx[input.Name]; ok && val != nil {
			if s := fmt.Sprintf("%v", val); s != "" {
				secretValues = append(secretValues, s)
			}
		}
	}
	for _, s := range extra {
		if s != "" {
			secretValues = append(secretValues, s)
		}
	}

	// Longest first so that a secret containing another is replaced whole.
	sort.Slice(secretValues, func(i, j int) bool {
		return len(secretValues[i]) > len(secretValues[j])
	})

	return &Redactor{
		Secrets: secretValues,
	}
}

func (r *Redactor) Redact(s string) string {
	if r == nil || len(r.Secrets) == 0 {
		return s
	}

	for _, secret := range r.Secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "********")
	}
	return s
}

package providers

import (
	"fmt"
	"strings"

	"github.com/abhinav155942/wobble/pkg/models"
)

// FreeTierModel is the selection value that routes an agent to the hosted
// gateway instead of a customer key.
const FreeTierModel = "wobble-free"

// Selection is the outcome of routing an agent's model settings: the
// provider to stream through and the model identifier to request from it.
type Selection struct {
	Provider Provider
	Model    string
}

// Selector routes agents to providers based on their AI settings.
// BYOK providers are constructed per call because each agent carries its
// own key.
type Selector struct {
	gateway *Gateway
}

func NewSelector(gateway *Gateway) *Selector {
	return &Selector{gateway: gateway}
}

// Select resolves the provider for an agent.
//
// A selected model of "wobble-free" or empty goes to the hosted gateway
// with its default model. Anything else must be "<provider>-<model>" where
// the provider part matches the agent's configured custom provider and an
// API key is present.
func (s *Selector) Select(settings models.AISettings) (*Selection, error) {
	selected := strings.TrimSpace(settings.SelectedModel)
	if selected == "" || selected == FreeTierModel {
		return &Selection{Provider: s.gateway, Model: s.gateway.defaultModel}, nil
	}

	providerName, model, ok := splitSelectedModel(selected)
	if !ok {
		return nil, fmt.Errorf("unrecognized model selection %q", selected)
	}

	if settings.CustomProvider != "" && settings.CustomProvider != providerName {
		return nil, fmt.Errorf("model %q requires provider %q but agent is configured for %q",
			selected, providerName, settings.CustomProvider)
	}
	if settings.CustomAPIKey == "" {
		return nil, fmt.Errorf("model %q requires a %s API key", selected, providerName)
	}

	var (
		provider Provider
		err      error
	)
	switch providerName {
	case "openai":
		provider, err = NewOpenAI(settings.CustomAPIKey)
	case "anthropic":
		provider, err = NewAnthropic(settings.CustomAPIKey)
	case "google":
		provider, err = NewGoogle(settings.CustomAPIKey)
	}
	if err != nil {
		return nil, err
	}
	return &Selection{Provider: provider, Model: model}, nil
}

// splitSelectedModel separates "openai-gpt-4o" into ("openai", "gpt-4o").
// Model names contain dashes themselves, so only the known provider
// prefixes are split on.
func splitSelectedModel(selected string) (provider, model string, ok bool) {
	for _, name := range []string{"openai", "anthropic", "google"} {
		prefix := name + "-"
		if strings.HasPrefix(selected, prefix) && len(selected) > len(prefix) {
			return name, selected[len(prefix):], true
		}
	}
	return "", "", false
}

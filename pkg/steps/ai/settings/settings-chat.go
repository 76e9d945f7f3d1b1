package settings

import (
	"github.com/huandu/go-clone"
	"github.com/spf13/viper"
)

const (
	DefaultModel                 = "gemini-2.5-flash"
	DefaultWorkerTemperature     = 0.0
	DefaultSupervisorTemperature = 0.2
)

// ChatSettings configures one chat model binding.
type ChatSettings struct {
	Model             string   `yaml:"model,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	MaxResponseTokens *int     `yaml:"max_response_tokens,omitempty"`
}

func NewChatSettings(temperature float64) *ChatSettings {
	return &ChatSettings{
		Model:       DefaultModel,
		Temperature: &temperature,
	}
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// WithTemperature returns a copy using the given temperature.
func (s *ChatSettings) WithTemperature(t float64) *ChatSettings {
	ret := s.Clone()
	ret.Temperature = &t
	return ret
}

// ChatSettingsFromViper reads the model name and the temperature stored
// under temperatureKey. Unset keys keep their defaults.
func ChatSettingsFromViper(v *viper.Viper, temperatureKey string, defaultTemperature float64) *ChatSettings {
	s := NewChatSettings(defaultTemperature)
	if m := v.GetString("model"); m != "" {
		s.Model = m
	}
	if v.IsSet(temperatureKey) {
		t := v.GetFloat64(temperatureKey)
		s.Temperature = &t
	}
	if v.IsSet("max-response-tokens") {
		n := v.GetInt("max-response-tokens")
		s.MaxResponseTokens = &n
	}
	return s
}

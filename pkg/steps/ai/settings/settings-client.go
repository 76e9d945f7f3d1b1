package settings

import (
	"net/http"
	"time"

	"github.com/huandu/go-clone"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

type ClientSettings struct {
	APIKey     string         `yaml:"api_key,omitempty"`
	BaseURL    string         `yaml:"base_url,omitempty"`
	Timeout    *time.Duration `yaml:"timeout,omitempty"`
	HTTPClient *http.Client   `yaml:"-" json:"-"`
}

func NewClientSettings() *ClientSettings {
	defaultTimeout := 60 * time.Second
	return &ClientSettings{
		BaseURL: DefaultBaseURL,
		Timeout: &defaultTimeout,
	}
}

// UnmarshalYAML accepts the timeout as a number of seconds.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		APIKey  string `yaml:"api_key,omitempty"`
		BaseURL string `yaml:"base_url,omitempty"`
		Timeout *int   `yaml:"timeout,omitempty"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	cs.APIKey = aux.APIKey
	cs.BaseURL = aux.BaseURL
	if aux.Timeout != nil {
		t := time.Duration(*aux.Timeout) * time.Second
		cs.Timeout = &t
	}
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	return clone.Clone(cs).(*ClientSettings)
}

func ClientSettingsFromViper(v *viper.Viper) *ClientSettings {
	cs := NewClientSettings()
	cs.APIKey = v.GetString("gemini-api-key")
	if u := v.GetString("base-url"); u != "" {
		cs.BaseURL = u
	}
	if v.IsSet("client-timeout") {
		t := v.GetDuration("client-timeout")
		cs.Timeout = &t
	}
	return cs
}

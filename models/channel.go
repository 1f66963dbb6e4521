package models

import (
	"encoding/json"
	"strings"
)

// Channel is an upstream gateway channel as returned by its channel listing API.
type Channel struct {
	ID           int64  `json:"id"`
	Type         int    `json:"type"`
	Name         string `json:"name"`
	Status       int    `json:"status"` // 1 = enabled
	Weight       int    `json:"weight"`
	CreatedTime  int64  `json:"created_time"`
	TestTime     int64  `json:"test_time"`
	ResponseTime int64  `json:"response_time"`
	BaseURL      string `json:"base_url"`
	Models       string `json:"models"`        // Currently enabled models, comma separated.
	ModelMapping string `json:"model_mapping"` // JSON object: renamed name -> source name.
	Group        string `json:"group"`
	UsedQuota    int64  `json:"used_quota"`
	Priority     int64  `json:"priority"`
	AutoBan      int    `json:"auto_ban"`
	Tag          string `json:"tag"`

	UpstreamModels []string `json:"upstreamModels,omitempty"` // Local: last fetched upstream model list.
}

// EnabledModels splits the comma separated Models field. Blank entries are dropped.
func (c Channel) EnabledModels() []string {
	if c.Models == "" {
		return []string{}
	}
	parts := strings.Split(c.Models, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseModelMapping decodes the channel's rename map. Entries whose value is not a string are
// dropped. An empty ModelMapping yields an empty map.
func (c Channel) ParseModelMapping() (map[string]string, error) {
	mapping := make(map[string]string)
	if strings.TrimSpace(c.ModelMapping) == "" {
		return mapping, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(c.ModelMapping), &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			mapping[k] = s
		}
	}
	return mapping, nil
}

// ChannelConfig is the enabled-model list and rename map a channel must be configured with.
type ChannelConfig struct {
	EnabledModels []string          `json:"enabledModels"`
	RenameMap     map[string]string `json:"renameMap"`
}

// Models returns the comma separated form expected by the upstream channel update.
func (c ChannelConfig) Models() string {
	return strings.Join(c.EnabledModels, ",")
}

// ModelMapping returns the JSON object form of RenameMap expected by the upstream channel update.
func (c ChannelConfig) ModelMapping() (string, error) {
	m := c.RenameMap
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ChannelUpdate is the body sent to the upstream gateway to reconfigure one channel.
type ChannelUpdate struct {
	ID           int64  `json:"id"`
	Models       string `json:"models"`
	ModelMapping string `json:"model_mapping"`
}

// ChannelPreview is the generated config for a channel together with the conflicts it hides.
type ChannelPreview struct {
	ChannelID      int64           `json:"channelId"`
	ChannelName    string          `json:"channelName"`
	UpstreamModels []string        `json:"upstreamModels"`
	Config         ChannelConfig   `json:"config"`
	Models         string          `json:"models"`
	ModelMapping   string          `json:"modelMapping"`
	Conflicts      []DuplicateInfo `json:"conflicts"`
}

// UpstreamConfig holds the connection details of the upstream gateway.
type UpstreamConfig struct {
	BaseURL string `json:"baseUrl"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
}

// OriginalModels maps the enabled models back to the names the provider exposes, using the
// rename map. A model_mapping that cannot be parsed is treated as empty.
func (c Channel) OriginalModels() []string {
	mapping, err := c.ParseModelMapping()
	if err != nil {
		mapping = map[string]string{}
	}
	enabled := c.EnabledModels()
	out := make([]string, 0, len(enabled))
	for _, m := range enabled {
		if src := mapping[m]; src != "" {
			out = append(out, src)
		} else {
			out = append(out, m)
		}
	}
	return out
}

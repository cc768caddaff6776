package models

import "time"

const WhatsAppSettingsKey = "whatsapp"

type Setting struct {
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GatewayCredentials authenticate against the WhatsApp gateway. Treat as secret.
type GatewayCredentials struct {
	InstanceID string `json:"instance_id"`
	APIToken   string `json:"api_token"`
}

func (c GatewayCredentials) Empty() bool {
	return c.InstanceID == "" || c.APIToken == ""
}

// Masked hides all but the last four characters of the token.
func (c GatewayCredentials) Masked() GatewayCredentials {
	out := GatewayCredentials{InstanceID: c.InstanceID}
	if n := len(c.APIToken); n > 4 {
		out.APIToken = "****" + c.APIToken[n-4:]
	} else if n > 0 {
		out.APIToken = "****"
	}
	return out
}

// CredentialsFromSetting reads instance_id/api_token out of a settings document.
func CredentialsFromSetting(s *Setting) GatewayCredentials {
	if s == nil {
		return GatewayCredentials{}
	}
	id, _ := s.Value["instance_id"].(string)
	token, _ := s.Value["api_token"].(string)
	return GatewayCredentials{InstanceID: id, APIToken: token}
}

func (c GatewayCredentials) SettingValue() map[string]any {
	return map[string]any{
		"instance_id": c.InstanceID,
		"api_token":   c.APIToken,
	}
}

package model

// AppSettings は永続化されるアプリ設定。
type AppSettings struct {
	DefaultEventInfo EventInfo `json:"defaultEventInfo"`
	WebhookURL       string    `json:"webhookUrl"`
}

// SettingsUpdate はAppSettingsの部分更新。
type SettingsUpdate struct {
	DefaultEventInfo *EventInfo `json:"defaultEventInfo,omitempty"`
	WebhookURL       *string    `json:"webhookUrl,omitempty"`
}

// Apply は部分更新をAppSettingsにマージした結果を返す。
func (u SettingsUpdate) Apply(s AppSettings) AppSettings {
	if u.DefaultEventInfo != nil {
		s.DefaultEventInfo = *u.DefaultEventInfo
	}
	if u.WebhookURL != nil {
		s.WebhookURL = *u.WebhookURL
	}
	return s
}

package model

// ChannelDescriptor is a numbered channel computed from configuration each sync cycle
type ChannelDescriptor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Number  int    `json:"number"`
	Enabled bool   `json:"enabled"`
}

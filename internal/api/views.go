package api

import "store-sessions/internal/models"

func views(list []models.SessionRecord, currentID string) []SessionView {
	out := make([]SessionView, 0, len(list))
	for _, s := range list {
		out = append(out, SessionView{
			SessionID:     s.SessionID,
			SourceAddress: s.SourceAddress,
			LastActivity:  s.LastActivity,
			Current:       s.SessionID == currentID,
		})
	}
	return out
}

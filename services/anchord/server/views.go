package server

import (
	"time"

	"anchorledger/services/anchord/api"
	"anchorledger/services/anchord/journal"
)

func eventViewFrom(entry journal.Entry) api.EventView {
	evt := entry.Event()
	return api.EventView{
		ID:            entry.ID.String(),
		User:          evt.User,
		ActionType:    evt.ActionType,
		Action:        evt.Action,
		DataHash:      evt.DataHash,
		Timestamp:     evt.Timestamp,
		SchemaVersion: evt.SchemaVersion,
		RecordedAt:    entry.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
}

package sessions

import "store-sessions/internal/models"

// Document is a principal held as a loosely typed attribute map, with its
// session list stored under the configured field names.
type Document struct {
	ID     string
	Data   map[string]interface{}
	fields FieldNames
}

func NewDocument(fields FieldNames, id string, data map[string]interface{}) *Document {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Document{ID: id, Data: data, fields: fields}
}

func (d *Document) PrincipalID() string {
	return d.ID
}

// SessionList decodes the stored list. Unreadable records are dropped and
// readable ones kept; a value that is not a list reads as empty so
// reconciliation can rewrite it.
func (d *Document) SessionList() []models.SessionRecord {
	list, _ := d.fields.DecodeList(d.Data[d.fields.Sessions])
	return list
}

func (d *Document) ReplaceSessions(list []models.SessionRecord) {
	d.Data[d.fields.Sessions] = d.fields.EncodeList(list)
}

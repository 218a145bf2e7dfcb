package models

// Resolution records how a conflict was settled.
type Resolution struct {
	Strategy   string                 `json:"strategy"`
	Data       map[string]interface{} `json:"data,omitempty"`
	ResolvedAt int64                  `json:"resolvedAt"`
}

// Conflict is a detected divergence between the local and server versions of
// one entity. Once Resolved is true the record is read-only except for
// cleanup deletion.
type Conflict struct {
	ID           string                 `json:"id"`
	EntityType   string                 `json:"entityType"`
	EntityID     string                 `json:"entityId"`
	LocalData    map[string]interface{} `json:"localData"`
	ServerData   map[string]interface{} `json:"serverData"`
	ConflictType string                 `json:"conflictType"`
	Timestamp    int64                  `json:"timestamp"`
	Resolved     bool                   `json:"resolved"`
	Resolution   *Resolution            `json:"resolution,omitempty"`
}

// TableName returns the collection name for Conflict.
func (Conflict) TableName() string {
	return "conflicts"
}

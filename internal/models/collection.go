package models

import "time"

// CollectionInfo describes one record collection served by the catalog.
type CollectionInfo struct {
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	SearchFields []string  `json:"search_fields"`
	Records      int       `json:"records"`
	Checksum     string    `json:"checksum"`
	LoadedAt     time.Time `json:"loaded_at"`
}

package domain

import "time"

// SortOrder selects how a picture listing is ordered.
type SortOrder string

const (
	OrderTitleAsc  SortOrder = "asc"
	OrderTitleDesc SortOrder = "desc"
	OrderRandom    SortOrder = "random"
	OrderOldest    SortOrder = "old"
	OrderNewest    SortOrder = "new"
)

// PageSize caps every listing.
const PageSize = 10

// Picture is one catalog record. Filename is relative to the asset store.
type Picture struct {
	ID        int64
	Title     string
	Filename  string
	CreatedAt time.Time
}

// PictureView is the public projection of a picture.
type PictureView struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	File  string `json:"file"`
}

// IncomingFile is an uploaded asset waiting in temporary storage.
type IncomingFile struct {
	TempPath string
	MimeType string
}

// ParseSortOrder resolves a client token to an ordering.
// Unknown and empty tokens resolve to OrderNewest.
func ParseSortOrder(token string) SortOrder {
	switch token {
	case "asc", "a2z":
		return OrderTitleAsc
	case "desc", "z2a":
		return OrderTitleDesc
	case "random", "rnd":
		return OrderRandom
	case "old":
		return OrderOldest
	default:
		return OrderNewest
	}
}

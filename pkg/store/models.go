package store

import (
	"time"

	"jstagram/pkg/domain"
)

// PictureModel is the GORM row for a picture.
type PictureModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Title     string    `gorm:"size:1024;not null"`
	Filename  string    `gorm:"size:255;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (PictureModel) TableName() string {
	return "pictures"
}

func pictureToModel(p domain.Picture) PictureModel {
	return PictureModel{
		ID:        p.ID,
		Title:     p.Title,
		Filename:  p.Filename,
		CreatedAt: p.CreatedAt,
	}
}

func pictureFromModel(m PictureModel) domain.Picture {
	return domain.Picture{
		ID:        m.ID,
		Title:     m.Title,
		Filename:  m.Filename,
		CreatedAt: m.CreatedAt,
	}
}

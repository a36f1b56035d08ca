package models

import "time"

// Post is one portfolio piece.
type Post struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	ClientName  string         `json:"client_name"`
	Description string         `json:"description"`
	ClientLogo  string         `json:"client_logo,omitempty"`
	Gallery     []GalleryImage `json:"gallery_images"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// GalleryImage is a stored work plus its optional thumbnail.
type GalleryImage struct {
	Path       string `json:"path"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	IsVertical bool   `json:"is_vertical"`
	Caption    string `json:"caption"`
}

type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Usage     int       `json:"usage"`
}

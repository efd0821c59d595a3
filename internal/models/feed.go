package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewsArticle is a curated news item stored by the site's ingestion jobs.
type NewsArticle struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Source      string             `bson:"source" json:"source"`
	URL         string             `bson:"url" json:"url"`
	Summary     string             `bson:"summary" json:"summary"` // may contain HTML
	Score       float64            `bson:"score" json:"score"`
	PublishedAt time.Time          `bson:"published_at" json:"published_at"`
}

// SocialPost is a post from the site's social feed.
type SocialPost struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author    string             `bson:"author" json:"author"`
	Handle    string             `bson:"handle" json:"handle"`
	Content   string             `bson:"content" json:"content"`
	Likes     int                `bson:"likes" json:"likes"`
	Reposts   int                `bson:"reposts" json:"reposts"`
	Score     float64            `bson:"score" json:"score"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

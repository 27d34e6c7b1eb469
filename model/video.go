package model

import (
	"fmt"
	"time"
)

type YoutubeVideoID string

// Descriptor is what a search returns for a video. It does not change after discovery.
type Descriptor struct {
	ID          YoutubeVideoID
	Title       string
	Channel     string
	PublishedAt time.Time
	Description string
}

// Stats is an engagement snapshot. A nil field has not been measured.
type Stats struct {
	Views         *int64
	Comments      *int64
	Likes         *int64
	LengthMinutes *float64
}

type SentimentRating struct {
	Model      string
	Title      float64
	Transcript *float64
}

type Video struct {
	Descriptor

	Stats      *Stats
	Transcript *string
	Sentiment  *SentimentRating
}

func NewVideo(d Descriptor) *Video {
	return &Video{Descriptor: d}
}

func (v *Video) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", v.ID)
}

func (v *Video) HasTranscript() bool {
	return v.Transcript != nil && *v.Transcript != ""
}

// Clone returns a deep copy, so a caller can mutate it without touching the original.
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	c := &Video{Descriptor: v.Descriptor}
	if v.Stats != nil {
		c.Stats = v.Stats.Clone()
	}
	if v.Transcript != nil {
		c.Transcript = String(*v.Transcript)
	}
	if v.Sentiment != nil {
		s := *v.Sentiment
		if v.Sentiment.Transcript != nil {
			s.Transcript = Float(*v.Sentiment.Transcript)
		}
		c.Sentiment = &s
	}

	return c
}

func (s *Stats) Clone() *Stats {
	if s == nil {
		return nil
	}
	c := &Stats{}
	if s.Views != nil {
		c.Views = Int(*s.Views)
	}
	if s.Comments != nil {
		c.Comments = Int(*s.Comments)
	}
	if s.Likes != nil {
		c.Likes = Int(*s.Likes)
	}
	if s.LengthMinutes != nil {
		c.LengthMinutes = Float(*s.LengthMinutes)
	}

	return c
}

func Int(i int64) *int64 { return &i }

func Float(f float64) *float64 { return &f }

func String(s string) *string { return &s }

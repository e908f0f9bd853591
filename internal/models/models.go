/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// RepeatMode enumerates the task cadences.
type RepeatMode string

const (
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekday RepeatMode = "weekday"
	RepeatWeekend RepeatMode = "weekend"
	RepeatCustom  RepeatMode = "custom"
	RepeatOnce    RepeatMode = "once"
)

// ExecutionStatus is the lifecycle state of an execution history row.
type ExecutionStatus string

const (
	ExecutionStarted   ExecutionStatus = "started"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCompleted ExecutionStatus = "completed"
)

// PlayMode is informational; playback is always sequential in sort order.
const PlayModeSequential = "sequential"

// AudioFile is a clip in the library.
type AudioFile struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string     `gorm:"type:varchar(255);not null" json:"name"`
	Path       string     `gorm:"type:varchar(1024);not null" json:"path"`
	Format     string     `gorm:"type:varchar(16)" json:"format"`
	FileSize   int64      `json:"file_size"`
	Duration   int        `gorm:"not null;default:0" json:"duration"` // seconds
	PlayCount  int        `gorm:"not null;default:0" json:"play_count"`
	LastPlayed *time.Time `json:"last_played,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AudioFile) TableName() string {
	return "audio_files"
}

// Playlist is an ordered collection of audio clips.
type Playlist struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	PlayMode  string         `gorm:"type:varchar(16);not null;default:'sequential'" json:"play_mode"`
	Items     []PlaylistItem `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistItem places one audio file in a playlist. The same audio file may
// appear more than once; each entry plays separately. Entries are ordered by
// sort_order and then by ID, which follows insertion order.
type PlaylistItem struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PlaylistID int64      `gorm:"not null;index:idx_playlist_items_order,priority:1" json:"playlist_id"`
	AudioID    int64      `gorm:"not null;index" json:"audio_id"`
	SortOrder  int        `gorm:"not null;default:0;index:idx_playlist_items_order,priority:2" json:"sort_order"`
	Audio      *AudioFile `gorm:"foreignKey:AudioID;constraint:OnDelete:CASCADE" json:"audio,omitempty"`
}

// TableName returns the table name for GORM.
func (PlaylistItem) TableName() string {
	return "playlist_items"
}

// ScheduledTask fires a playlist at a local wall-clock time on a cadence.
type ScheduledTask struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string     `gorm:"type:varchar(255);not null" json:"name"`
	Hour            int        `gorm:"not null" json:"hour"`
	Minute          int        `gorm:"not null" json:"minute"`
	RepeatMode      RepeatMode `gorm:"type:varchar(16);not null;default:'daily'" json:"repeat_mode"`
	CustomDays      DaySet     `gorm:"type:varchar(32)" json:"custom_days"`
	PlaylistID      int64      `gorm:"not null;index" json:"playlist_id"`
	Volume          int        `gorm:"not null" json:"volume"`
	FadeInSeconds   int        `gorm:"column:fade_in_duration;not null;default:0" json:"fade_in_duration"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	IsEnabled       bool       `gorm:"not null;index" json:"is_enabled"`
	Priority        int        `gorm:"not null;default:0" json:"priority"`
	Playlist        *Playlist  `gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ScheduledTask) TableName() string {
	return "scheduled_tasks"
}

// ExecutionHistory records one firing of a task. Rows are inserted as started
// when the task is judged due and updated in place once playback finishes.
type ExecutionHistory struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID        int64           `gorm:"not null;index:idx_execution_task_time,priority:1" json:"task_id"`
	ExecutionTime time.Time       `gorm:"not null;index:idx_execution_task_time,priority:2" json:"execution_time"`
	Status        ExecutionStatus `gorm:"type:varchar(16);not null" json:"status"`
	Duration      *int            `json:"duration,omitempty"` // seconds
	Error         string          `gorm:"type:text" json:"error,omitempty"`
	RunID         string          `gorm:"type:varchar(36)" json:"run_id,omitempty"`
	Task          *ScheduledTask  `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for GORM.
func (ExecutionHistory) TableName() string {
	return "execution_history"
}

// PlaybackHistory is appended once per completed track.
type PlaybackHistory struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AudioID      int64     `gorm:"not null;index" json:"audio_id"`
	AudioName    string    `gorm:"type:varchar(255)" json:"audio_name"`
	PlaylistID   *int64    `gorm:"index" json:"playlist_id,omitempty"`
	PlaylistName string    `gorm:"type:varchar(255)" json:"playlist_name,omitempty"`
	TaskID       *int64    `json:"task_id,omitempty"`
	RunID        string    `gorm:"type:varchar(36)" json:"run_id,omitempty"`
	PlayedAt     time.Time `gorm:"not null;index" json:"played_at"`
}

// TableName returns the table name for GORM.
func (PlaybackHistory) TableName() string {
	return "playback_history"
}

// TaskListing is a scheduled task joined with its playlist name.
type TaskListing struct {
	ScheduledTask
	PlaylistName string     `json:"playlist_name"`
	NextFireAt   *time.Time `gorm:"-" json:"next_fire_at,omitempty"`
}

// PlaylistSummary is a playlist with its aggregate size.
type PlaylistSummary struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	PlayMode        string `json:"play_mode"`
	ItemCount       int    `json:"item_count"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Entry is one resolved playlist position ready for playback.
type Entry struct {
	ItemID   int64  `json:"item_id"`
	AudioID  int64  `json:"audio_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Duration int    `json:"duration"` // seconds
}

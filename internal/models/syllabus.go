package models

import (
	"time"

	"github.com/google/uuid"
)

// Syllabus is the 1:1 study plan of a group.
type Syllabus struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"group_id"`
	Topics    []Topic   `gorm:"foreignKey:SyllabusID" json:"topics"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Topic is an ordered section of a syllabus. Order is insertion order.
type Topic struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SyllabusID  uint       `gorm:"not null;index" json:"syllabus_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	SubTopics   []SubTopic `gorm:"foreignKey:TopicID" json:"sub_topics"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SubTopic is an ordered entry under a topic.
type SubTopic struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TopicID   uint      `gorm:"not null;index" json:"topic_id"`
	Title     string    `gorm:"not null" json:"title"`
	Content   string    `gorm:"type:text" json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyllabusInput is the submitted syllabus tree before persistence.
type SyllabusInput struct {
	Topics []TopicInput `json:"topics" validate:"required,min=1,dive"`
}

// TopicInput is a submitted topic and its subtopics.
type TopicInput struct {
	Title       string          `json:"title" validate:"notblank"`
	Description string          `json:"description"`
	SubTopics   []SubTopicInput `json:"subTopics" validate:"required,min=1,dive"`
}

// SubTopicInput is a submitted subtopic.
type SubTopicInput struct {
	Title   string `json:"title" validate:"notblank"`
	Content string `json:"content"`
}

package models

// Classification is the suggested categorization of an issue photo
type Classification struct {
	Success        bool          `json:"success"`
	Category       IssueCategory `json:"category"`
	CategoryName   string        `json:"categoryName,omitempty"`
	MLCategory     string        `json:"mlCategory,omitempty"`
	Confidence     float64       `json:"confidence"`
	Priority       Priority      `json:"priority"`
	Department     string        `json:"department"`
	AllPredictions []Prediction  `json:"allPredictions,omitempty"`
	Fallback       bool          `json:"fallback"`
}

// Prediction is one candidate class from the classifier
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// IssueText is generated title and description for an issue
type IssueText struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Fallback    bool   `json:"fallback"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VerificationQuorum is the number of community votes needed to settle an issue
const VerificationQuorum = 3

// Verdict is a community member's judgement of an issue
type Verdict string

// Verdicts
const (
	VerdictCorrect   Verdict = "correct"
	VerdictIncorrect Verdict = "incorrect"
)

// CommunityVerification holds the structure for the communityverifications collection in mongo
type CommunityVerification struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Issue     primitive.ObjectID `json:"issue" bson:"issue"`
	User      primitive.ObjectID `json:"user" bson:"user"`
	Verdict   Verdict            `json:"verdict" bson:"verdict"`
	Comment   string             `json:"comment,omitempty" bson:"comment,omitempty"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// VerificationTally counts votes on one issue
type VerificationTally struct {
	Correct       int  `json:"correct"`
	Incorrect     int  `json:"incorrect"`
	QuorumReached bool `json:"quorumReached"`
	Accurate      bool `json:"accurate"`
}

// NewVerificationTally settles the vote counts against the quorum
func NewVerificationTally(correct, incorrect int) VerificationTally {
	quorum := correct+incorrect >= VerificationQuorum
	return VerificationTally{
		Correct:       correct,
		Incorrect:     incorrect,
		QuorumReached: quorum,
		Accurate:      quorum && correct > incorrect,
	}
}

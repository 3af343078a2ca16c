package models

import "time"

// SchedulerLock holds the structure for the schedulerlocks collection in mongo
type SchedulerLock struct {
	JobName   string    `bson:"_id"`
	Holder    string    `bson:"holder"`
	ExpiresAt time.Time `bson:"expiresAt"`
}
